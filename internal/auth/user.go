// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that start with a letter and contain only
// letters, numbers, and underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// emailRegex is deliberately loose; deliverability is the notification
// sink's problem, this only rejects obvious garbage.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents an account. Accounts are never hard-deleted; DisabledAt
// soft-disables the account while preserving conversation ownership history.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        *string
	PasswordHash string
	IsStaff      bool

	// SessionEpoch is a per-user generation counter. Sessions are stamped
	// with the epoch current at creation; bumping the epoch invalidates
	// every outstanding session in one atomic write.
	SessionEpoch int64

	// FailedAttempts counts consecutive failed logins. LockedUntil is set
	// once the count crosses LockoutThreshold.
	FailedAttempts int
	LockedUntil    *time.Time

	DisabledAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewUser creates a validated User with a hashed password already computed.
// email may be empty.
func NewUser(username, email, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	var emailPtr *string
	if email != "" {
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
		e := email
		emailPtr = &e
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        emailPtr,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsDisabled returns true if the account has been soft-disabled.
func (u *User) IsDisabled() bool {
	return u.DisabledAt != nil
}

// IsLocked returns true while a login lockout is in effect.
func (u *User) IsLocked() bool {
	return IsLockedOut(u.LockedUntil)
}

// RecordFailure increments the failure counter and sets the lockout once the
// threshold is reached.
func (u *User) RecordFailure() {
	u.FailedAttempts++
	u.LockedUntil = ComputeLockoutTime(u.FailedAttempts)
}

// RecordSuccess clears the failure counter and any lockout.
func (u *User) RecordSuccess() {
	u.FailedAttempts = 0
	u.LockedUntil = nil
}

// ValidateUsername validates a username against account rules:
// MinUsernameLength to MaxUsernameLength characters, must start with a
// letter, letters/numbers/underscores only.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail validates an email address shape.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("invalid email address")
	}
	return nil
}

// LooksLikeEmail reports whether an identifier should also be tried as an
// email during login and reset lookups.
func LooksLikeEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// UserRepository manages account persistence. Username and email lookups are
// case-insensitive; Create must surface unique violations as ErrDuplicate.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates username, email, and staff/disabled flags.
	Update(ctx context.Context, user *User) error

	// UpdatePassword updates only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetStaff flips the staff flag.
	SetStaff(ctx context.Context, id ulid.ULID, isStaff bool) error

	// BumpSessionEpoch atomically increments the session epoch and returns
	// the new value. Every session stamped with an older epoch stops
	// validating immediately.
	BumpSessionEpoch(ctx context.Context, id ulid.ULID) (int64, error)

	// Disable soft-disables the account.
	Disable(ctx context.Context, id ulid.ULID, at time.Time) error

	// Count returns the total number of accounts.
	Count(ctx context.Context) (int64, error)
}
