package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RecordState is the lifecycle state of a booking record.
type RecordState string

const (
	RecordActive    RecordState = "active"
	RecordCompleted RecordState = "completed"
)

// Valid reports whether s is one of the known record states.
func (s RecordState) Valid() bool {
	return s == RecordActive || s == RecordCompleted
}

// ParseRecordState converts a stored status string into a RecordState.
func ParseRecordState(s string) (RecordState, error) {
	st := RecordState(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown record state %q", s)
	}
	return st, nil
}

// BookingRecord is an audit entry describing one occupancy interval of a
// slot.  It is created active when a slot is booked and moved to completed
// when the slot is released; after that it never changes.  SlotID is not a
// foreign key: history outlives the slot set.
//
// Fields:
//  ID              – primary key identifier.
//  SlotID          – slot the booking was made for.
//  OwnerName       – occupant name at booking time.
//  VehicleNumber   – vehicle registration at booking time.
//  EntryTime       – booked start.
//  ExitTime        – booked end.
//  DurationMinutes – exit minus entry in whole minutes, fixed at creation.
//  State           – active or completed.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type BookingRecord struct {
	ID              uint64
	SlotID          int
	OwnerName       string
	VehicleNumber   string
	EntryTime       time.Time
	ExitTime        time.Time
	DurationMinutes int64
	State           RecordState
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether the record describes a booking that has not
// been released yet.
func (r BookingRecord) IsActive() bool { return r.State == RecordActive }

// DurationMinutes returns the length of the interval in minutes rounded
// half up, e.g. 90s -> 2, 89s -> 1.
func DurationMinutes(entry, exit time.Time) int64 {
	ms := exit.Sub(entry).Milliseconds()
	return int64(math.Floor(float64(ms)/60000 + 0.5))
}

// NewActiveRecord builds an active record for the given occupancy with the
// duration computed once, here.
func NewActiveRecord(slotID int, occ Occupancy) BookingRecord {
	return BookingRecord{
		SlotID:          slotID,
		OwnerName:       occ.OwnerName,
		VehicleNumber:   occ.VehicleNumber,
		EntryTime:       occ.EntryTime,
		ExitTime:        occ.ExitTime,
		DurationMinutes: DurationMinutes(occ.EntryTime, occ.ExitTime),
		State:           RecordActive,
	}
}
