package database

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/parkmate/internal/logging"
	"github.com/iliyamo/parkmate/internal/model"
	"github.com/iliyamo/parkmate/internal/repository"
)

// SeedOptions controls what Seed provisions.
type SeedOptions struct {
	SlotIDs    []int
	Demo       bool
	Location   *time.Location
	AdminEmail string
	AdminPass  string
	AdminName  string
	BcryptCost int
}

type demoStay struct {
	slotID  int
	owner   string
	plate   string
	entry   string
	exit    string
	current bool // still parked: record stays active
}

var demoStays = []demoStay{
	{101, "Bob Johnson", "DEF456", "2024-12-17T08:00:00", "2024-12-17T16:00:00", false},
	{102, "Alice Brown", "GHI789", "2024-12-17T11:00:00", "2024-12-17T19:00:00", false},
	{103, "John Doe", "ABC123", "2024-12-18T10:00:00", "2024-12-18T18:00:00", true},
	{105, "Jane Smith", "XYZ789", "2024-12-18T09:00:00", "2024-12-18T17:00:00", true},
}

// Seed provisions slots, demo history and the admin user.  Slots and
// history are only seeded into an empty store so restarts never rewrite
// live data; the admin account is created whenever it is missing.
//
// History is written before the slots and slot occupancy is taken from the
// active records actually stored, so a failed import leaves the slot table
// empty and the next start seeds both again.
func Seed(ctx context.Context, slots repository.SlotStore, history repository.HistoryLog, users repository.UserStore, opts SeedOptions) error {
	log := logging.WithContext(ctx)
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	existing, err := slots.List(ctx)
	if err != nil {
		return fmt.Errorf("list slots: %w", err)
	}
	if len(existing) == 0 {
		records, err := demoRecords(opts.SlotIDs, opts.Demo, loc)
		if err != nil {
			return err
		}
		count, err := history.Count(ctx)
		if err != nil {
			return fmt.Errorf("count records: %w", err)
		}
		imported := 0
		if count == 0 && len(records) > 0 {
			if err := history.Import(ctx, records); err != nil {
				return fmt.Errorf("seed records: %w", err)
			}
			imported = len(records)
		}
		stored, err := history.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		n, err := slots.Seed(ctx, provisionSlots(opts.SlotIDs, stored))
		if err != nil {
			return fmt.Errorf("seed slots: %w", err)
		}
		log.Info().Int("slots", n).Int("records", imported).Msg("parking data seeded")
	}

	if users != nil && opts.AdminEmail != "" {
		created, err := users.EnsureUser(ctx, opts.AdminEmail, opts.AdminName, opts.AdminPass, "admin", opts.BcryptCost)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			log.Info().Str("email", opts.AdminEmail).Msg("admin user created")
		}
	}
	return nil
}

// provisionSlots builds the slot set.  A slot is occupied only when the
// history holds an active record for it.
func provisionSlots(ids []int, stored []model.BookingRecord) []model.Slot {
	active := make(map[int]model.BookingRecord)
	for _, rec := range stored {
		if rec.IsActive() {
			active[rec.SlotID] = rec
		}
	}
	out := make([]model.Slot, 0, len(ids))
	for _, id := range ids {
		s := model.NewAvailableSlot(id)
		if rec, ok := active[id]; ok {
			s.State = model.SlotOccupied
			s.Occupancy = &model.Occupancy{
				OwnerName:     rec.OwnerName,
				VehicleNumber: rec.VehicleNumber,
				EntryTime:     rec.EntryTime,
				ExitTime:      rec.ExitTime,
			}
		}
		out = append(out, s)
	}
	return out
}

// demoRecords builds the sample history when demo is on.  Demo stays for
// slots outside ids are skipped.
func demoRecords(ids []int, demo bool, loc *time.Location) ([]model.BookingRecord, error) {
	if !demo {
		return nil, nil
	}
	known := make(map[int]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	var records []model.BookingRecord
	for _, st := range demoStays {
		if !known[st.slotID] {
			continue
		}
		entry, err := time.ParseInLocation("2006-01-02T15:04:05", st.entry, loc)
		if err != nil {
			return nil, err
		}
		exit, err := time.ParseInLocation("2006-01-02T15:04:05", st.exit, loc)
		if err != nil {
			return nil, err
		}
		occ := model.Occupancy{OwnerName: st.owner, VehicleNumber: st.plate, EntryTime: entry, ExitTime: exit}
		rec := model.NewActiveRecord(st.slotID, occ)
		if !st.current {
			rec.State = model.RecordCompleted
		}
		records = append(records, rec)
	}
	return records, nil
}
