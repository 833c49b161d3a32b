// Package queue defines the slot lifecycle events exchanged over RabbitMQ,
// the publisher used by the booking service and the background consumer
// that appends them to an audit log file.
package queue

import "time"

// Event types.
const (
	EventSlotBooked   = "slot.booked"
	EventSlotReleased = "slot.released"
)

// DefaultQueue is the durable queue slot events are routed to.
const DefaultQueue = "parking.slot.events"

// SlotEvent is published after a booking or release succeeds.  It carries
// enough information for consumers to log or notify without querying the
// slot store.
type SlotEvent struct {
	Type            string    `json:"type"`
	SlotID          int       `json:"slot_id"`
	RecordID        uint64    `json:"record_id,omitempty"`
	OwnerName       string    `json:"owner_name,omitempty"`
	VehicleNumber   string    `json:"vehicle_number,omitempty"`
	EntryTime       time.Time `json:"entry_time,omitempty"`
	ExitTime        time.Time `json:"exit_time,omitempty"`
	DurationMinutes int64     `json:"duration_minutes,omitempty"`
	Caller          string    `json:"caller,omitempty"`
	Warning         string    `json:"warning,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}
