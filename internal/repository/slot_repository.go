package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/parkmate/internal/model"
)

// SlotRepo is the MySQL-backed SlotStore.  Transitions are single
// conditional UPDATE statements, so the state check and the write cannot
// be split by another connection.  All timestamps are stored in UTC.
//
// A transition that matched its row is final: the returned slot is built
// from the values written, never read back, so a failed read can not make
// a committed write look like a failed one.
type SlotRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSlotRepo returns a SlotRepo bound to the given database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db, now: time.Now} }

// stamp returns the current time at the precision of a DATETIME column.
func (r *SlotRepo) stamp() time.Time { return r.now().UTC().Truncate(time.Second) }

const slotColumns = `slot_id, status, owner_name, vehicle_number, entry_time, exit_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (model.Slot, error) {
	var (
		s            model.Slot
		status       string
		owner, plate sql.NullString
		entry, exit  sql.NullTime
	)
	if err := row.Scan(&s.ID, &status, &owner, &plate, &entry, &exit, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Slot{}, err
	}
	st, err := model.ParseSlotState(status)
	if err != nil {
		return model.Slot{}, err
	}
	s.State = st
	if st == model.SlotOccupied {
		s.Occupancy = &model.Occupancy{
			OwnerName:     owner.String,
			VehicleNumber: plate.String,
			EntryTime:     entry.Time.UTC(),
			ExitTime:      exit.Time.UTC(),
		}
	}
	return s, nil
}

// List returns all slots ordered by slot_id.
func (r *SlotRepo) List(ctx context.Context) ([]model.Slot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+slotColumns+` FROM parking_slots ORDER BY slot_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	slots := []model.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

// Get loads one slot by id.
func (r *SlotRepo) Get(ctx context.Context, id int) (model.Slot, error) {
	s, err := scanSlot(r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM parking_slots WHERE slot_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Slot{}, ErrSlotNotFound
	}
	return s, err
}

// SetOccupied flips an available slot to occupied.  When no row matches,
// the slot is looked up to tell a missing slot from an occupied one.
func (r *SlotRepo) SetOccupied(ctx context.Context, id int, occ model.Occupancy) (model.Slot, error) {
	const q = `UPDATE parking_slots
	           SET status = 'occupied', owner_name = ?, vehicle_number = ?, entry_time = ?, exit_time = ?, updated_at = ?
	           WHERE slot_id = ? AND status = 'available'`
	occ.EntryTime, occ.ExitTime = occ.EntryTime.UTC(), occ.ExitTime.UTC()
	now := r.stamp()
	res, err := r.db.ExecContext(ctx, q,
		occ.OwnerName, occ.VehicleNumber, occ.EntryTime, occ.ExitTime, now, id)
	if err != nil {
		return model.Slot{}, err
	}
	if err := r.checkTransition(ctx, res, id, ErrSlotOccupied); err != nil {
		return model.Slot{}, err
	}
	return model.Slot{ID: id, State: model.SlotOccupied, Occupancy: &occ, UpdatedAt: now}, nil
}

// SetAvailable clears an occupied slot and nulls every occupant column.
func (r *SlotRepo) SetAvailable(ctx context.Context, id int) (model.Slot, error) {
	const q = `UPDATE parking_slots
	           SET status = 'available', owner_name = NULL, vehicle_number = NULL, entry_time = NULL, exit_time = NULL, updated_at = ?
	           WHERE slot_id = ? AND status = 'occupied'`
	now := r.stamp()
	res, err := r.db.ExecContext(ctx, q, now, id)
	if err != nil {
		return model.Slot{}, err
	}
	if err := r.checkTransition(ctx, res, id, ErrSlotAvailable); err != nil {
		return model.Slot{}, err
	}
	return model.Slot{ID: id, State: model.SlotAvailable, UpdatedAt: now}, nil
}

// checkTransition maps a zero-row UPDATE to ErrSlotNotFound or conflict.
func (r *SlotRepo) checkTransition(ctx context.Context, res sql.Result, id int, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM parking_slots WHERE slot_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSlotNotFound
	}
	if err != nil {
		return err
	}
	return conflict
}

// Seed inserts provisioned slots with INSERT IGNORE so existing rows keep
// their current state.
func (r *SlotRepo) Seed(ctx context.Context, slots []model.Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	query := `INSERT IGNORE INTO parking_slots (slot_id, status, owner_name, vehicle_number, entry_time, exit_time) VALUES `
	args := make([]interface{}, 0, len(slots)*6)
	for i, s := range slots {
		if err := s.Validate(); err != nil {
			return 0, err
		}
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		if s.Occupancy != nil {
			args = append(args, s.ID, string(s.State), s.Occupancy.OwnerName, s.Occupancy.VehicleNumber,
				s.Occupancy.EntryTime.UTC(), s.Occupancy.ExitTime.UTC())
		} else {
			args = append(args, s.ID, string(s.State), nil, nil, nil, nil)
		}
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// utcOrZero keeps zero times zero when converting to UTC.
func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
