// Package service implements the parking booking workflow on top of the
// slot store and the history log.  Book and release are the only two
// operations that touch both collections; they run under a per-slot lock so
// the slot table and its active history record move together.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/parkmate/internal/lock"
	"github.com/iliyamo/parkmate/internal/logging"
	"github.com/iliyamo/parkmate/internal/model"
	"github.com/iliyamo/parkmate/internal/queue"
	"github.com/iliyamo/parkmate/internal/repository"
)

// EventPublisher receives slot lifecycle events.  Publishing is best
// effort: an error is logged and never fails the operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.SlotEvent) error
}

// BookRequest carries the raw booking input as received from a client.
type BookRequest struct {
	SlotID        int
	OwnerName     string
	VehicleNumber string
	EntryTime     string
	ExitTime      string
}

// ReleaseResult acknowledges a release.  Record is the completed history
// record, nil when the slot had no active record; Warning explains that
// divergence.
type ReleaseResult struct {
	SlotID  int
	Record  *model.BookingRecord
	Warning string
}

// Divergence describes a slot whose occupancy disagrees with the history.
type Divergence struct {
	SlotID         int    `json:"slot_id"`
	SlotState      string `json:"slot_state"`
	ActiveRecordID uint64 `json:"active_record_id,omitempty"`
	Problem        string `json:"problem"`
}

// Accepted entry/exit formats, tried in order.  Zone-less values are read
// in the service location.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// BookingService coordinates the slot store and the history log.
type BookingService struct {
	slots       repository.SlotStore
	history     repository.HistoryLog
	locker      lock.Locker
	publisher   EventPublisher
	loc         *time.Location
	lockTimeout time.Duration
	now         func() time.Time
}

// Option customizes a BookingService.
type Option func(*BookingService)

// WithLocker replaces the default in-process KeyedLocker, e.g. with a
// lock.RedisLocker shared by several instances.
func WithLocker(l lock.Locker) Option { return func(s *BookingService) { s.locker = l } }

// WithPublisher enables slot.booked and slot.released events.
func WithPublisher(p EventPublisher) Option { return func(s *BookingService) { s.publisher = p } }

// WithLocation sets the zone used for timestamps without an offset.
func WithLocation(loc *time.Location) Option {
	return func(s *BookingService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLockTimeout bounds how long Book and Release wait for the slot lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the clock used to stamp events.
func WithClock(now func() time.Time) Option { return func(s *BookingService) { s.now = now } }

// NewBookingService wires a service with an in-process locker, UTC and a
// five second lock timeout unless overridden.
func NewBookingService(slots repository.SlotStore, history repository.HistoryLog, opts ...Option) *BookingService {
	s := &BookingService{
		slots:       slots,
		history:     history,
		locker:      lock.NewKeyedLocker(),
		loc:         time.UTC,
		lockTimeout: 5 * time.Second,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *BookingService) ListSlots(ctx context.Context) ([]model.Slot, error) {
	return s.slots.List(ctx)
}

func (s *BookingService) GetSlot(ctx context.Context, id int) (model.Slot, error) {
	return s.slots.Get(ctx, id)
}

func (s *BookingService) ListRecords(ctx context.Context) ([]model.BookingRecord, error) {
	return s.history.ListAll(ctx)
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", repository.ErrValidation, msg)
}

// parseTime accepts the layouts in timeLayouts.
func (s *BookingService) parseTime(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, validationErr(field + " is required")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationErr(field + " must be a timestamp like 2006-01-02T15:04 or RFC 3339")
}

// ParseOccupancy validates raw booking input and returns the occupancy it
// describes.
func (s *BookingService) ParseOccupancy(req BookRequest) (model.Occupancy, error) {
	owner := strings.TrimSpace(req.OwnerName)
	if owner == "" {
		return model.Occupancy{}, validationErr("owner_name is required")
	}
	plate := strings.TrimSpace(req.VehicleNumber)
	if plate == "" {
		return model.Occupancy{}, validationErr("vehicle_number is required")
	}
	entry, err := s.parseTime("entry_time", req.EntryTime)
	if err != nil {
		return model.Occupancy{}, err
	}
	exit, err := s.parseTime("exit_time", req.ExitTime)
	if err != nil {
		return model.Occupancy{}, err
	}
	if !exit.After(entry) {
		return model.Occupancy{}, validationErr("exit_time must be after entry_time")
	}
	return model.Occupancy{OwnerName: owner, VehicleNumber: plate, EntryTime: entry, ExitTime: exit}, nil
}

func (s *BookingService) acquire(ctx context.Context, slotID int) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	unlock, err := s.locker.Acquire(lctx, strconv.Itoa(slotID))
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", slotID, err)
	}
	return unlock, nil
}

// Book occupies an available slot and opens its active history record.
// Input is validated before anything is written.  If the record cannot be
// appended the slot is put back to available; when that compensation also
// fails both errors are returned and a reconciliation task is logged.
func (s *BookingService) Book(ctx context.Context, caller string, req BookRequest) (model.Slot, error) {
	occ, err := s.ParseOccupancy(req)
	if err != nil {
		return model.Slot{}, err
	}
	unlock, err := s.acquire(ctx, req.SlotID)
	if err != nil {
		return model.Slot{}, err
	}
	slot, rec, err := s.book(ctx, caller, req.SlotID, occ)
	unlock()
	if err != nil {
		return model.Slot{}, err
	}

	s.publish(ctx, queue.SlotEvent{
		Type:            queue.EventSlotBooked,
		SlotID:          slot.ID,
		RecordID:        rec.ID,
		OwnerName:       occ.OwnerName,
		VehicleNumber:   occ.VehicleNumber,
		EntryTime:       occ.EntryTime,
		ExitTime:        occ.ExitTime,
		DurationMinutes: rec.DurationMinutes,
		Caller:          caller,
	})
	return slot, nil
}

// book runs with the slot lock held.
func (s *BookingService) book(ctx context.Context, caller string, slotID int, occ model.Occupancy) (model.Slot, model.BookingRecord, error) {
	log := logging.WithContext(ctx).With().Int("slot_id", slotID).Str("caller", caller).Logger()

	slot, err := s.slots.SetOccupied(ctx, slotID, occ)
	if err != nil {
		return model.Slot{}, model.BookingRecord{}, err
	}

	rec, err := s.history.Append(ctx, slotID, occ)
	if err != nil {
		// the caller's ctx may already be cancelled; compensation must still run
		rbCtx := context.WithoutCancel(ctx)
		if _, rbErr := s.slots.SetAvailable(rbCtx, slotID); rbErr != nil {
			log.Error().
				Err(err).
				AnErr("rollback_error", rbErr).
				Str("task", "reconcile").
				Msg("booking rollback failed; slot is occupied without an active record")
			return model.Slot{}, model.BookingRecord{}, errors.Join(err, fmt.Errorf("rollback slot %d: %w", slotID, rbErr))
		}
		log.Warn().Err(err).Msg("history append failed; slot booking rolled back")
		return model.Slot{}, model.BookingRecord{}, err
	}

	log.Info().Uint64("record_id", rec.ID).Int64("duration_minutes", rec.DurationMinutes).Msg("slot booked")
	return slot, rec, nil
}

// Release completes the slot's active record and frees the slot.  A slot
// that is occupied but has no active record is still freed; the result then
// carries a warning describing the divergence.
func (s *BookingService) Release(ctx context.Context, caller string, slotID int) (ReleaseResult, error) {
	unlock, err := s.acquire(ctx, slotID)
	if err != nil {
		return ReleaseResult{}, err
	}
	res, err := s.release(ctx, caller, slotID)
	unlock()
	if err != nil {
		return ReleaseResult{}, err
	}

	ev := queue.SlotEvent{Type: queue.EventSlotReleased, SlotID: slotID, Caller: caller, Warning: res.Warning}
	if res.Record != nil {
		ev.RecordID = res.Record.ID
		ev.OwnerName = res.Record.OwnerName
		ev.VehicleNumber = res.Record.VehicleNumber
		ev.EntryTime = res.Record.EntryTime
		ev.ExitTime = res.Record.ExitTime
		ev.DurationMinutes = res.Record.DurationMinutes
	}
	s.publish(ctx, ev)
	return res, nil
}

// release runs with the slot lock held.
func (s *BookingService) release(ctx context.Context, caller string, slotID int) (ReleaseResult, error) {
	log := logging.WithContext(ctx).With().Int("slot_id", slotID).Str("caller", caller).Logger()

	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return ReleaseResult{}, err
	}
	if !slot.IsOccupied() {
		return ReleaseResult{}, repository.ErrSlotAvailable
	}

	res := ReleaseResult{SlotID: slotID}
	rec, err := s.history.CompleteActive(ctx, slotID)
	switch {
	case errors.Is(err, repository.ErrNoActiveRecord):
		res.Warning = fmt.Sprintf("slot %d had no active booking record", slotID)
		log.Warn().Msg("releasing occupied slot without an active booking record")
	case err != nil:
		return ReleaseResult{}, err
	default:
		res.Record = &rec
	}

	if _, err := s.slots.SetAvailable(ctx, slotID); err != nil {
		if res.Record != nil {
			log.Error().
				Err(err).
				Uint64("record_id", res.Record.ID).
				Str("task", "reconcile").
				Msg("record completed but slot could not be freed")
		}
		return ReleaseResult{}, err
	}
	log.Info().Msg("slot released")
	return res, nil
}

// Reconcile compares every slot against the active history records and
// reports disagreements.  It only reads.
func (s *BookingService) Reconcile(ctx context.Context) ([]Divergence, error) {
	slots, err := s.slots.List(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.history.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[int]model.BookingRecord)
	for _, r := range records {
		if r.IsActive() {
			active[r.SlotID] = r
		}
	}

	out := []Divergence{}
	known := make(map[int]bool, len(slots))
	for _, slot := range slots {
		known[slot.ID] = true
		rec, hasActive := active[slot.ID]
		switch {
		case slot.IsOccupied() && !hasActive:
			out = append(out, Divergence{SlotID: slot.ID, SlotState: string(slot.State), Problem: "occupied slot has no active record"})
		case !slot.IsOccupied() && hasActive:
			out = append(out, Divergence{SlotID: slot.ID, SlotState: string(slot.State), ActiveRecordID: rec.ID, Problem: "available slot has an active record"})
		case hasActive && !sameOccupant(*slot.Occupancy, rec):
			out = append(out, Divergence{SlotID: slot.ID, SlotState: string(slot.State), ActiveRecordID: rec.ID, Problem: "occupant differs from active record"})
		}
	}
	for id, rec := range active {
		if !known[id] {
			out = append(out, Divergence{SlotID: id, ActiveRecordID: rec.ID, Problem: "active record for unknown slot"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out, nil
}

func sameOccupant(occ model.Occupancy, rec model.BookingRecord) bool {
	return occ.OwnerName == rec.OwnerName &&
		occ.VehicleNumber == rec.VehicleNumber &&
		occ.EntryTime.Equal(rec.EntryTime) &&
		occ.ExitTime.Equal(rec.ExitTime)
}

func (s *BookingService) publish(ctx context.Context, ev queue.SlotEvent) {
	if s.publisher == nil {
		return
	}
	ev.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logging.Warn(ctx).Err(err).Str("event", ev.Type).Int("slot_id", ev.SlotID).Msg("event publish failed")
	}
}
