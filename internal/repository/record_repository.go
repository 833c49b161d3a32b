package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/parkmate/internal/model"
)

// RecordRepo is the MySQL-backed HistoryLog over the `parking_records`
// table.  A stored generated column (active_slot_id) with a unique index
// guarantees at most one active record per slot even across processes.
// Like SlotRepo, writes return the values they stored instead of reading
// the row back.
type RecordRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecordRepo returns a RecordRepo bound to the given database.
func NewRecordRepo(db *sql.DB) *RecordRepo { return &RecordRepo{db: db, now: time.Now} }

// stamp returns the current time at the precision of a DATETIME(3) column.
func (r *RecordRepo) stamp() time.Time { return r.now().UTC().Truncate(time.Millisecond) }

const recordColumns = `id, slot_id, owner_name, vehicle_number, entry_time, exit_time, duration_minutes, status, created_at, updated_at`

func scanRecord(row rowScanner) (model.BookingRecord, error) {
	var (
		rec    model.BookingRecord
		status string
	)
	err := row.Scan(&rec.ID, &rec.SlotID, &rec.OwnerName, &rec.VehicleNumber, &rec.EntryTime, &rec.ExitTime,
		&rec.DurationMinutes, &status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return model.BookingRecord{}, err
	}
	st, err := model.ParseRecordState(status)
	if err != nil {
		return model.BookingRecord{}, err
	}
	rec.State = st
	rec.EntryTime = rec.EntryTime.UTC()
	rec.ExitTime = rec.ExitTime.UTC()
	return rec, nil
}

// isDuplicateKey reports MySQL error 1062 (duplicate entry).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// Append inserts an active record.  The id comes from LastInsertId and the
// timestamps are set explicitly, so the returned record matches the row.
func (r *RecordRepo) Append(ctx context.Context, slotID int, occ model.Occupancy) (model.BookingRecord, error) {
	if err := validateAppend(occ); err != nil {
		return model.BookingRecord{}, err
	}
	rec := model.NewActiveRecord(slotID, occ)
	rec.EntryTime, rec.ExitTime = rec.EntryTime.UTC(), rec.ExitTime.UTC()
	rec.CreatedAt = r.stamp()
	rec.UpdatedAt = rec.CreatedAt

	const q = `INSERT INTO parking_records
	           (slot_id, owner_name, vehicle_number, entry_time, exit_time, duration_minutes, status, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rec.SlotID, rec.OwnerName, rec.VehicleNumber,
		rec.EntryTime, rec.ExitTime, rec.DurationMinutes, string(rec.State), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return model.BookingRecord{}, ErrActiveRecordExists
		}
		return model.BookingRecord{}, err
	}
	// the row is written either way; an unknown id must not fail the append
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = uint64(id)
	}
	return rec, nil
}

// CompleteActive closes the active record of a slot.  The UPDATE repeats the
// status condition so a concurrent completion makes this call report
// ErrNoActiveRecord instead of completing twice.
func (r *RecordRepo) CompleteActive(ctx context.Context, slotID int) (model.BookingRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM parking_records WHERE slot_id = ? AND status = 'active' LIMIT 1`, slotID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.BookingRecord{}, ErrNoActiveRecord
	}
	if err != nil {
		return model.BookingRecord{}, err
	}
	now := r.stamp()
	res, err := r.db.ExecContext(ctx,
		`UPDATE parking_records SET status = 'completed', updated_at = ? WHERE id = ? AND status = 'active'`, now, rec.ID)
	if err != nil {
		return model.BookingRecord{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.BookingRecord{}, err
	}
	if n == 0 {
		return model.BookingRecord{}, ErrNoActiveRecord
	}
	rec.State = model.RecordCompleted
	rec.UpdatedAt = now
	return rec, nil
}

// ListAll returns all records newest first.
func (r *RecordRepo) ListAll(ctx context.Context) ([]model.BookingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM parking_records ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []model.BookingRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of rows in parking_records.
func (r *RecordRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parking_records`).Scan(&n)
	return n, err
}

// Import bulk-inserts historical records.  Durations missing from the input
// are computed from the interval.
func (r *RecordRepo) Import(ctx context.Context, records []model.BookingRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := `INSERT INTO parking_records (slot_id, owner_name, vehicle_number, entry_time, exit_time, duration_minutes, status) VALUES `
	args := make([]interface{}, 0, len(records)*7)
	for i, rec := range records {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		if rec.DurationMinutes == 0 {
			rec.DurationMinutes = model.DurationMinutes(rec.EntryTime, rec.ExitTime)
		}
		args = append(args, rec.SlotID, rec.OwnerName, rec.VehicleNumber,
			utcOrZero(rec.EntryTime), utcOrZero(rec.ExitTime), rec.DurationMinutes, string(rec.State))
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	if isDuplicateKey(err) {
		return ErrActiveRecordExists
	}
	return err
}
