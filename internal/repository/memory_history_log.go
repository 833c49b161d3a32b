package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/parkmate/internal/model"
)

// MemoryHistoryLog is an in-process HistoryLog.  Records are kept in
// creation order and an index tracks the single active record per slot.
type MemoryHistoryLog struct {
	mu      sync.RWMutex
	records []model.BookingRecord
	active  map[int]int // slot id -> index into records
	nextID  uint64
	now     func() time.Time
}

// NewMemoryHistoryLog returns an empty log.
func NewMemoryHistoryLog() *MemoryHistoryLog {
	return &MemoryHistoryLog{
		active: make(map[int]int),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryHistoryLog) Append(ctx context.Context, slotID int, occ model.Occupancy) (model.BookingRecord, error) {
	if err := validateAppend(occ); err != nil {
		return model.BookingRecord{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[slotID]; ok {
		return model.BookingRecord{}, ErrActiveRecordExists
	}
	rec := model.NewActiveRecord(slotID, occ)
	l.insertLocked(&rec)
	return rec, nil
}

func (l *MemoryHistoryLog) CompleteActive(ctx context.Context, slotID int) (model.BookingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.active[slotID]
	if !ok {
		return model.BookingRecord{}, ErrNoActiveRecord
	}
	rec := l.records[idx]
	rec.State = model.RecordCompleted
	rec.UpdatedAt = l.now()
	l.records[idx] = rec
	delete(l.active, slotID)
	return rec, nil
}

func (l *MemoryHistoryLog) ListAll(ctx context.Context) ([]model.BookingRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.BookingRecord, 0, len(l.records))
	for i := len(l.records) - 1; i >= 0; i-- {
		out = append(out, l.records[i])
	}
	return out, nil
}

func (l *MemoryHistoryLog) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

func (l *MemoryHistoryLog) Import(ctx context.Context, records []model.BookingRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range records {
		if rec.IsActive() {
			if _, ok := l.active[rec.SlotID]; ok {
				return ErrActiveRecordExists
			}
		}
		if rec.DurationMinutes == 0 {
			rec.DurationMinutes = model.DurationMinutes(rec.EntryTime, rec.ExitTime)
		}
		l.insertLocked(&rec)
	}
	return nil
}

// insertLocked assigns id and timestamps and appends rec.  l.mu must be held.
func (l *MemoryHistoryLog) insertLocked(rec *model.BookingRecord) {
	now := l.now()
	rec.ID = l.nextID
	l.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	l.records = append(l.records, *rec)
	if rec.IsActive() {
		l.active[rec.SlotID] = len(l.records) - 1
	}
}
