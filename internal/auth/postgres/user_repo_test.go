// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/pkg/errutil"
)

func newUserMock(t *testing.T) (pgxmock.PgxPoolIface, *UserRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock, NewUserRepository(mock)
}

func testUser() *auth.User {
	now := time.Now()
	email := "alice@example.com"
	return &auth.User{
		ID:           ulid.Make(),
		Username:     "alice",
		Email:        &email,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$salt$hash",
		SessionEpoch: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, user *auth.User)
		wantCode  string
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface, user *auth.User) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(
						user.ID.String(), user.Username, user.Email, user.PasswordHash,
						user.IsStaff, user.SessionEpoch, user.FailedAttempts,
						user.LockedUntil, user.DisabledAt,
						user.CreatedAt, user.UpdatedAt,
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation becomes duplicate",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.User) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantCode: "USER_DUPLICATE",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.User) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "USER_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, repo := newUserMock(t)
			user := testUser()
			tt.setupMock(mock, user)

			err := repo.Create(context.Background(), user)

			if tt.wantCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestUserRepository_Create_DuplicateWrapsSentinel(t *testing.T) {
	mock, repo := newUserMock(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := repo.Create(context.Background(), testUser())
	assert.ErrorIs(t, err, auth.ErrDuplicate)
}

func TestUserRepository_GetByID(t *testing.T) {
	user := testUser()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantCode  string
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{
					"id", "username", "email", "password_hash", "is_staff",
					"session_epoch", "failed_attempts", "locked_until",
					"disabled_at", "created_at", "updated_at",
				}).AddRow(
					user.ID.String(), user.Username, user.Email, user.PasswordHash,
					user.IsStaff, user.SessionEpoch, user.FailedAttempts,
					user.LockedUntil, user.DisabledAt,
					user.CreatedAt, user.UpdatedAt,
				)
				mock.ExpectQuery(`SELECT .+ FROM users`).
					WithArgs(user.ID.String()).
					WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM users`).
					WithArgs(user.ID.String()).
					WillReturnRows(pgxmock.NewRows([]string{
						"id", "username", "email", "password_hash", "is_staff",
						"session_epoch", "failed_attempts", "locked_until",
						"disabled_at", "created_at", "updated_at",
					}))
			},
			wantCode: "USER_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, repo := newUserMock(t)
			tt.setupMock(mock)

			got, err := repo.GetByID(context.Background(), user.ID)

			if tt.wantCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantCode)
				assert.ErrorIs(t, err, auth.ErrNotFound)
			} else {
				require.NoError(t, err)
				assert.Equal(t, user.ID, got.ID)
				assert.Equal(t, user.Username, got.Username)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestUserRepository_Update_NotFound(t *testing.T) {
	mock, repo := newUserMock(t)
	user := testUser()

	mock.ExpectExec(`UPDATE users SET`).
		WithArgs(
			user.ID.String(), user.Username, user.Email, user.IsStaff,
			user.FailedAttempts, user.LockedUntil,
			user.DisabledAt, pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), user)
	errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_BumpSessionEpoch(t *testing.T) {
	id := ulid.Make()

	t.Run("returns new epoch", func(t *testing.T) {
		mock, repo := newUserMock(t)
		mock.ExpectQuery(`UPDATE users SET session_epoch = session_epoch \+ 1`).
			WithArgs(id.String(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"session_epoch"}).AddRow(int64(3)))

		epoch, err := repo.BumpSessionEpoch(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(3), epoch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		mock, repo := newUserMock(t)
		mock.ExpectQuery(`UPDATE users SET session_epoch = session_epoch \+ 1`).
			WithArgs(id.String(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"session_epoch"}))

		_, err := repo.BumpSessionEpoch(context.Background(), id)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_Count(t *testing.T) {
	mock, repo := newUserMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
