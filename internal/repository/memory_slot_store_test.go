package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parkmate/internal/model"
)

func occupancy(owner, plate string, entry time.Time, d time.Duration) model.Occupancy {
	return model.Occupancy{OwnerName: owner, VehicleNumber: plate, EntryTime: entry, ExitTime: entry.Add(d)}
}

func seededSlotStore(t *testing.T, ids ...int) *MemorySlotStore {
	t.Helper()
	s := NewMemorySlotStore()
	slots := make([]model.Slot, 0, len(ids))
	for _, id := range ids {
		slots = append(slots, model.NewAvailableSlot(id))
	}
	n, err := s.Seed(context.Background(), slots)
	require.NoError(t, err)
	require.Equal(t, len(ids), n)
	return s
}

func TestMemorySlotStore_ListOrdered(t *testing.T) {
	s := seededSlotStore(t, 105, 101, 103)
	slots, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, []int{101, 103, 105}, []int{slots[0].ID, slots[1].ID, slots[2].ID})
}

func TestMemorySlotStore_GetUnknown(t *testing.T) {
	s := seededSlotStore(t, 101)
	_, err := s.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	assert.True(t, IsNotFound(err))
}

func TestMemorySlotStore_Transitions(t *testing.T) {
	ctx := context.Background()
	s := seededSlotStore(t, 101)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	slot, err := s.SetOccupied(ctx, 101, occupancy("A", "X1", entry, 2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.SlotOccupied, slot.State)
	require.NotNil(t, slot.Occupancy)
	assert.Equal(t, "A", slot.Occupancy.OwnerName)
	require.NoError(t, slot.Validate())

	_, err = s.SetOccupied(ctx, 101, occupancy("B", "X2", entry, time.Hour))
	assert.ErrorIs(t, err, ErrSlotOccupied)
	assert.True(t, IsConflict(err))

	got, err := s.Get(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Occupancy.OwnerName, "failed booking must not touch the slot")

	slot, err = s.SetAvailable(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, model.SlotAvailable, slot.State)
	assert.Nil(t, slot.Occupancy)

	_, err = s.SetAvailable(ctx, 101)
	assert.ErrorIs(t, err, ErrSlotAvailable)

	_, err = s.SetOccupied(ctx, 999, occupancy("A", "X1", entry, time.Hour))
	assert.ErrorIs(t, err, ErrSlotNotFound)
	_, err = s.SetAvailable(ctx, 999)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestMemorySlotStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := seededSlotStore(t, 101)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	slot, err := s.SetOccupied(ctx, 101, occupancy("A", "X1", entry, time.Hour))
	require.NoError(t, err)

	slot.Occupancy.OwnerName = "mutated"
	got, err := s.Get(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Occupancy.OwnerName)
}

func TestMemorySlotStore_SeedKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := seededSlotStore(t, 101)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	_, err := s.SetOccupied(ctx, 101, occupancy("A", "X1", entry, time.Hour))
	require.NoError(t, err)

	n, err := s.Seed(ctx, []model.Slot{model.NewAvailableSlot(101), model.NewAvailableSlot(102)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.Get(ctx, 101)
	require.NoError(t, err)
	assert.True(t, got.IsOccupied())
}

func TestMemorySlotStore_SeedRejectsInvalid(t *testing.T) {
	s := NewMemorySlotStore()
	_, err := s.Seed(context.Background(), []model.Slot{{ID: 1, State: model.SlotOccupied}})
	assert.Error(t, err)
}

func TestMemorySlotStore_ConcurrentOccupyHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := seededSlotStore(t, 101)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SetOccupied(ctx, 101, occupancy("A", "X1", entry, time.Hour)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
