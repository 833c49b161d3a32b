package repository

import (
	"context"
	"time"

	"github.com/iliyamo/parkmate/internal/model"
)

// SlotStore holds one record per provisioned slot.  SetOccupied and
// SetAvailable perform their state check and write atomically; callers that
// need a slot and its history to move together serialize on the slot id
// themselves.
type SlotStore interface {
	// List returns every slot ordered by identifier.
	List(ctx context.Context) ([]model.Slot, error)
	// Get returns a single slot or ErrSlotNotFound.
	Get(ctx context.Context, id int) (model.Slot, error)
	// SetOccupied marks an available slot occupied with the given occupant
	// data.  Returns ErrSlotOccupied if it is already occupied.
	SetOccupied(ctx context.Context, id int, occ model.Occupancy) (model.Slot, error)
	// SetAvailable clears an occupied slot.  Returns ErrSlotAvailable if
	// there is nothing to clear.
	SetAvailable(ctx context.Context, id int) (model.Slot, error)
	// Seed provisions slots that do not exist yet and reports how many
	// were inserted.  Existing slots are left untouched.
	Seed(ctx context.Context, slots []model.Slot) (int, error)
}

// HistoryLog is the append-only collection of booking records.
type HistoryLog interface {
	// Append stores a new active record; the duration is computed here.
	Append(ctx context.Context, slotID int, occ model.Occupancy) (model.BookingRecord, error)
	// CompleteActive closes the active record of a slot or returns
	// ErrNoActiveRecord.
	CompleteActive(ctx context.Context, slotID int) (model.BookingRecord, error)
	// ListAll returns every record, most recently created first.
	ListAll(ctx context.Context) ([]model.BookingRecord, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
	// Import stores historical records as-is, used for seeding.
	Import(ctx context.Context, records []model.BookingRecord) error
}

// validateAppend checks the interval before a record is written.
func validateAppend(occ model.Occupancy) error {
	if !occ.ExitTime.After(occ.EntryTime) {
		return ErrInvalidInterval
	}
	return nil
}

// UserStore persists accounts.  Emails are compared case-insensitively.
type UserStore interface {
	Create(ctx context.Context, email, name, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	EnsureUser(ctx context.Context, email, name, password, role string, cost int) (bool, error)
}

// TokenStore persists hashed refresh tokens.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}
