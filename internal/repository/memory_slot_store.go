package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/parkmate/internal/model"
)

// MemorySlotStore keeps the slot table in process memory.  The map is owned
// by the store and every read hands out copies, so the only way to change a
// slot is through SetOccupied and SetAvailable.
type MemorySlotStore struct {
	mu    sync.RWMutex
	slots map[int]model.Slot
	now   func() time.Time
}

// NewMemorySlotStore returns an empty store.  Use Seed to provision slots.
func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{
		slots: make(map[int]model.Slot),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemorySlotStore) List(ctx context.Context) ([]model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, slot.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySlotStore) Get(ctx context.Context, id int) (model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return model.Slot{}, ErrSlotNotFound
	}
	return slot.Clone(), nil
}

func (s *MemorySlotStore) SetOccupied(ctx context.Context, id int, occ model.Occupancy) (model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return model.Slot{}, ErrSlotNotFound
	}
	if slot.IsOccupied() {
		return model.Slot{}, ErrSlotOccupied
	}
	slot.State = model.SlotOccupied
	slot.Occupancy = &occ
	slot.UpdatedAt = s.now()
	s.slots[id] = slot
	return slot.Clone(), nil
}

func (s *MemorySlotStore) SetAvailable(ctx context.Context, id int) (model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return model.Slot{}, ErrSlotNotFound
	}
	if !slot.IsOccupied() {
		return model.Slot{}, ErrSlotAvailable
	}
	slot.State = model.SlotAvailable
	slot.Occupancy = nil
	slot.UpdatedAt = s.now()
	s.slots[id] = slot
	return slot.Clone(), nil
}

func (s *MemorySlotStore) Seed(ctx context.Context, slots []model.Slot) (int, error) {
	for _, slot := range slots {
		if err := slot.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, slot := range slots {
		if _, exists := s.slots[slot.ID]; exists {
			continue
		}
		slot = slot.Clone()
		now := s.now()
		slot.CreatedAt, slot.UpdatedAt = now, now
		s.slots[slot.ID] = slot
		inserted++
	}
	return inserted, nil
}
