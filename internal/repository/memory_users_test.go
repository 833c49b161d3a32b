package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/parkmate/internal/utils"
)

func TestMemoryUserStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	id, err := s.Create(ctx, " Admin@Example.com ", "Admin User", "admin", "admin", bcrypt.MinCost)
	require.NoError(t, err)

	u, err := s.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "Admin User", u.Name)
	assert.True(t, u.IsActive)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "admin"))

	_, err = s.Create(ctx, "ADMIN@example.com", "x", "y", "user", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrEmailExists)

	created, err := s.EnsureUser(ctx, "admin@example.com", "x", "y", "admin", bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.GetByID(ctx, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()

	require.NoError(t, s.StoreRefresh(ctx, 1, "h1", time.Now().Add(time.Hour)))
	require.NoError(t, s.StoreRefresh(ctx, 1, "h2", time.Now().Add(time.Hour)))
	require.NoError(t, s.StoreRefresh(ctx, 2, "expired", time.Now().Add(-time.Hour)))

	uid, err := s.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), uid)

	_, err = s.ValidateRefresh(ctx, "expired")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
	_, err = s.ValidateRefresh(ctx, "unknown")
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	require.NoError(t, s.RevokeByHash(ctx, "h1"))
	_, err = s.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	require.NoError(t, s.RevokeAllForUser(ctx, 1))
	_, err = s.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestUserRepoCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(errDuplicate)

	_, err := NewUserRepo(db).Create(context.Background(), "a@b.c", "A", "pw", "user", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoGetByEmailNormalizes(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM users WHERE email=\\?").
		WithArgs("admin@example.com").
		WillReturnRows(mock.NewRows([]string{"id", "email", "name", "password_hash", "role", "is_active", "created_at", "updated_at"}).
			AddRow(1, "admin@example.com", "Admin User", "x", "admin", true, now, now))

	u, err := NewUserRepo(db).GetByEmail(context.Background(), "  Admin@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "Admin User", u.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoGetByIDMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM users WHERE id=\\?").WithArgs(uint64(9)).WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepo(db).GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTokenRepoValidateRefresh(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 12, 18, 12, 0, 0, 0, time.UTC)
	repo := NewTokenRepo(db)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery("SELECT user_id FROM refresh_tokens").
		WithArgs("hash", now).
		WillReturnRows(mock.NewRows([]string{"user_id"}).AddRow(7))
	uid, err := repo.ValidateRefresh(context.Background(), "hash")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), uid)

	mock.ExpectQuery("SELECT user_id FROM refresh_tokens").
		WithArgs("gone", now).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.ValidateRefresh(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoRevoke(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 12, 18, 12, 0, 0, 0, time.UTC)
	repo := NewTokenRepo(db)
	repo.now = func() time.Time { return now }

	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=\\? WHERE token_hash=\\? AND revoked_at IS NULL").
		WithArgs(now, "hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=\\? WHERE user_id=\\? AND revoked_at IS NULL").
		WithArgs(now, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.RevokeByHash(context.Background(), "hash"))
	require.NoError(t, repo.RevokeAllForUser(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}
