package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parkmate/internal/model"
)

var recordCols = []string{"id", "slot_id", "owner_name", "vehicle_number", "entry_time", "exit_time", "duration_minutes", "status", "created_at", "updated_at"}

func TestRecordRepo_Append(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 1, 1, 9, 0, 0, 123000000, time.UTC)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	exit := entry.Add(2 * time.Hour)

	// only the INSERT: an unexpected read-back would fail the call
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO parking_records")).
		WithArgs(101, "A", "X1", entry, exit, int64(120), "active", now, now).
		WillReturnResult(sqlmock.NewResult(7, 1))

	repo := NewRecordRepo(db)
	repo.now = func() time.Time { return now.Add(456 * time.Microsecond) }
	rec, err := repo.Append(context.Background(), 101, occupancy("A", "X1", entry, 2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.ID)
	assert.Equal(t, int64(120), rec.DurationMinutes)
	assert.Equal(t, model.RecordActive, rec.State)
	assert.Equal(t, now, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_AppendKeepsWrittenRowWithoutID(t *testing.T) {
	db, mock := newMock(t)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO parking_records")).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("no insert id")))

	rec, err := NewRecordRepo(db).Append(context.Background(), 101, occupancy("A", "X1", entry, time.Hour))
	require.NoError(t, err)
	assert.Zero(t, rec.ID)
	assert.Equal(t, 101, rec.SlotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_AppendDuplicateActive(t *testing.T) {
	db, mock := newMock(t)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO parking_records")).
		WillReturnError(errDuplicate)

	_, err := NewRecordRepo(db).Append(context.Background(), 101, occupancy("A", "X1", entry, time.Hour))
	assert.ErrorIs(t, err, ErrActiveRecordExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_AppendInvalidIntervalSkipsDB(t *testing.T) {
	db, mock := newMock(t)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	_, err := NewRecordRepo(db).Append(context.Background(), 101, occupancy("A", "X1", entry, -time.Hour))
	assert.ErrorIs(t, err, ErrInvalidInterval)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_CompleteActive(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	exit := entry.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE slot_id = ? AND status = 'active' LIMIT 1")).
		WithArgs(101).
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow(3, 101, "A", "X1", entry, exit, 60, "active", created, created))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE parking_records SET status = 'completed', updated_at = ? WHERE id = ? AND status = 'active'")).
		WithArgs(now, uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecordRepo(db)
	repo.now = func() time.Time { return now }
	rec, err := repo.CompleteActive(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.ID)
	assert.Equal(t, model.RecordCompleted, rec.State)
	assert.Equal(t, int64(60), rec.DurationMinutes)
	assert.Equal(t, now, rec.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_CompleteActiveLostRace(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE slot_id = ? AND status = 'active' LIMIT 1")).
		WithArgs(101).
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow(3, 101, "A", "X1", entry, entry.Add(time.Hour), 60, "active", created, created))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE parking_records SET status = 'completed'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := NewRecordRepo(db).CompleteActive(context.Background(), 101)
	assert.ErrorIs(t, err, ErrNoActiveRecord)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_CompleteActiveMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE slot_id = ? AND status = 'active' LIMIT 1")).
		WithArgs(104).
		WillReturnRows(sqlmock.NewRows(recordCols))

	_, err := NewRecordRepo(db).CompleteActive(context.Background(), 104)
	assert.ErrorIs(t, err, ErrNoActiveRecord)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_ListAll(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow(2, 102, "B", "X2", entry, entry.Add(time.Hour), 60, "active", now.Add(time.Minute), now).
			AddRow(1, 101, "A", "X1", entry, entry.Add(time.Hour), 60, "completed", now, now))

	recs, err := NewRecordRepo(db).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 102, recs[0].SlotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_CountAndImport(t *testing.T) {
	db, mock := newMock(t)
	entry := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM parking_records")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO parking_records")).
		WithArgs(101, "Bob Johnson", "DEF456", entry, entry.Add(90*time.Minute), int64(90), "completed").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewRecordRepo(db)
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	err = repo.Import(context.Background(), []model.BookingRecord{{
		SlotID: 101, OwnerName: "Bob Johnson", VehicleNumber: "DEF456",
		EntryTime: entry, ExitTime: entry.Add(90 * time.Minute), State: model.RecordCompleted,
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var errDuplicate = &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
