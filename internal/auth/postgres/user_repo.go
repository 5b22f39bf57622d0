// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleyhq/parley/internal/auth"
)

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, is_staff, session_epoch, failed_attempts, locked_until, disabled_at, created_at, updated_at`

// Create stores a new user. Unique violations on username or email surface
// as auth.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, is_staff, session_epoch, failed_attempts, locked_until, disabled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsStaff,
		user.SessionEpoch,
		user.FailedAttempts,
		user.LockedUntil,
		user.DisabledAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(auth.ErrDuplicate)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(username) = LOWER($1)
	`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email IS NOT NULL AND LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// Update updates username, email, staff/disabled flags, and the login
// failure counters.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			username = $2,
			email = $3,
			is_staff = $4,
			failed_attempts = $5,
			locked_until = $6,
			disabled_at = $7,
			updated_at = $8
		WHERE id = $1
	`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.IsStaff,
		user.FailedAttempts,
		user.LockedUntil,
		user.DisabledAt,
		time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_DUPLICATE").
				With("id", user.ID.String()).
				Wrap(auth.ErrDuplicate)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword updates only the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetStaff flips the staff flag.
func (r *UserRepository) SetStaff(ctx context.Context, id ulid.ULID, isStaff bool) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET is_staff = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), isStaff, time.Now())
	if err != nil {
		return oops.Code("USER_SET_STAFF_FAILED").
			With("operation", "set staff flag").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// BumpSessionEpoch atomically increments the session epoch and returns the
// new value.
func (r *UserRepository) BumpSessionEpoch(ctx context.Context, id ulid.ULID) (int64, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users SET session_epoch = session_epoch + 1, updated_at = $2
		WHERE id = $1
		RETURNING session_epoch
	`, id.String(), time.Now())

	var epoch int64
	if err := row.Scan(&epoch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, oops.Code("USER_NOT_FOUND").
				With("id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		return 0, oops.Code("USER_BUMP_EPOCH_FAILED").
			With("operation", "bump session epoch").
			With("id", id.String()).
			Wrap(err)
	}
	return epoch, nil
}

// Disable soft-disables the account.
func (r *UserRepository) Disable(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET disabled_at = $2, updated_at = $2
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("USER_DISABLE_FAILED").
			With("operation", "disable user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Count returns the total number of accounts.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").Wrap(err)
	}
	return n, nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr          string
		username       string
		email          *string
		passwordHash   string
		isStaff        bool
		sessionEpoch   int64
		failedAttempts int
		lockedUntil    *time.Time
		disabledAt     *time.Time
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&idStr, &username, &email, &passwordHash, &isStaff, &sessionEpoch, &failedAttempts, &lockedUntil, &disabledAt, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to wrap with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:             id,
		Username:       username,
		Email:          email,
		PasswordHash:   passwordHash,
		IsStaff:        isStaff,
		SessionEpoch:   sessionEpoch,
		FailedAttempts: failedAttempts,
		LockedUntil:    lockedUntil,
		DisabledAt:     disabledAt,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
