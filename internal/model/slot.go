package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SlotState is the occupancy state of a parking slot.  A slot is either
// available or occupied; no other values are stored.
type SlotState string

const (
	SlotAvailable SlotState = "available"
	SlotOccupied  SlotState = "occupied"
)

// Valid reports whether s is one of the known slot states.
func (s SlotState) Valid() bool {
	return s == SlotAvailable || s == SlotOccupied
}

// ParseSlotState converts a stored status string into a SlotState.
func ParseSlotState(s string) (SlotState, error) {
	st := SlotState(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown slot state %q", s)
	}
	return st, nil
}

// Occupancy groups the four occupant fields of an occupied slot.  They are
// set and cleared together, so a slot holds either a complete Occupancy or
// none at all.
//
// Fields:
//  OwnerName     – name of the person who booked the slot.
//  VehicleNumber – registration of the parked vehicle.
//  EntryTime     – booked start of the stay.
//  ExitTime      – booked end of the stay.
type Occupancy struct {
	OwnerName     string
	VehicleNumber string
	EntryTime     time.Time
	ExitTime      time.Time
}

// Validate checks that every occupant field is present and that the stay
// ends after it starts.
func (o Occupancy) Validate() error {
	if strings.TrimSpace(o.OwnerName) == "" {
		return errors.New("owner name is required")
	}
	if strings.TrimSpace(o.VehicleNumber) == "" {
		return errors.New("vehicle number is required")
	}
	if o.EntryTime.IsZero() || o.ExitTime.IsZero() {
		return errors.New("entry and exit time are required")
	}
	if !o.ExitTime.After(o.EntryTime) {
		return errors.New("exit time must be after entry time")
	}
	return nil
}

// Slot represents one physical parking space as stored in the
// `parking_slots` table.  Slots are provisioned once at startup and are
// never deleted; only booking and release mutate them.
//
// Fields:
//  ID        – stable slot identifier (e.g. 101).
//  State     – available or occupied.
//  Occupancy – occupant data, non-nil iff State is occupied.
//  CreatedAt – provisioning timestamp.
//  UpdatedAt – last transition timestamp.
type Slot struct {
	ID        int
	State     SlotState
	Occupancy *Occupancy
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAvailableSlot returns an empty slot with the given identifier.
func NewAvailableSlot(id int) Slot {
	return Slot{ID: id, State: SlotAvailable}
}

// IsOccupied reports whether the slot is currently booked.
func (s Slot) IsOccupied() bool { return s.State == SlotOccupied }

// Validate enforces the slot invariant: occupant data is present exactly
// when the slot is occupied.
func (s Slot) Validate() error {
	if !s.State.Valid() {
		return fmt.Errorf("slot %d: invalid state %q", s.ID, s.State)
	}
	switch s.State {
	case SlotOccupied:
		if s.Occupancy == nil {
			return fmt.Errorf("slot %d: occupied without occupant data", s.ID)
		}
		if err := s.Occupancy.Validate(); err != nil {
			return fmt.Errorf("slot %d: %w", s.ID, err)
		}
	case SlotAvailable:
		if s.Occupancy != nil {
			return fmt.Errorf("slot %d: available but carries occupant data", s.ID)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate store-owned data.
func (s Slot) Clone() Slot {
	if s.Occupancy != nil {
		occ := *s.Occupancy
		s.Occupancy = &occ
	}
	return s
}
