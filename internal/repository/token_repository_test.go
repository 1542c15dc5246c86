package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenRows(userID uint64, expiresAt time.Time, revokedAt any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at",
	}).AddRow(1, userID, "hash", expiresAt, revokedAt, time.Now())
}

func TestValidateRefresh(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash=?").
		WithArgs("hash").
		WillReturnRows(tokenRows(7, time.Now().Add(time.Hour), nil))

	repo := NewTokenRepo(db)
	userID, err := repo.ValidateRefresh(context.Background(), "hash")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateRefreshRevoked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash=?").
		WithArgs("hash").
		WillReturnRows(tokenRows(7, time.Now().Add(time.Hour), time.Now()))

	repo := NewTokenRepo(db)
	_, err = repo.ValidateRefresh(context.Background(), "hash")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateRefreshExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash=?").
		WithArgs("hash").
		WillReturnRows(tokenRows(7, time.Now().Add(-time.Minute), nil))

	repo := NewTokenRepo(db)
	_, err = repo.ValidateRefresh(context.Background(), "hash")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeByHashConsumesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=NOW").
		WithArgs("hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// second attempt finds the row already revoked
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=NOW").
		WithArgs("hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewTokenRepo(db)
	require.NoError(t, repo.RevokeByHash(context.Background(), "hash"))
	assert.ErrorIs(t, repo.RevokeByHash(context.Background(), "hash"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
