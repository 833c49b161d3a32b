// Package repository defines the storage contracts for slots, booking
// history, users and refresh tokens, together with the error kinds shared
// by every layer above it.  Specific errors wrap one of the three kinds so
// handlers can classify them with errors.Is: ErrNotFound for unknown slots
// or records, ErrConflict for state transitions that would break an
// invariant, and ErrValidation for malformed input.
package repository

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")
)

// Slot store errors.
var (
	ErrSlotNotFound  = fmt.Errorf("slot %w", ErrNotFound)
	ErrSlotOccupied  = fmt.Errorf("%w: slot already occupied", ErrConflict)
	ErrSlotAvailable = fmt.Errorf("%w: slot is already available", ErrConflict)
)

// History log errors.
var (
	// ErrNoActiveRecord means the slot has no open booking record.  Seen
	// during release it indicates the slot table and history have diverged.
	ErrNoActiveRecord     = fmt.Errorf("active booking record %w", ErrNotFound)
	ErrActiveRecordExists = fmt.Errorf("%w: slot already has an active booking record", ErrConflict)
	ErrInvalidInterval    = fmt.Errorf("%w: exit time must be after entry time", ErrValidation)
)

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = fmt.Errorf("%w: email already exists", ErrConflict)

// IsNotFound reports whether err is of the not-found kind.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is of the conflict kind.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err is of the validation kind.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
