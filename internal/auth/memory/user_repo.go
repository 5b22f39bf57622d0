// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package memory implements the auth repositories in process memory. It backs
// service tests and the dev-mode server; semantics mirror the postgres
// package, including conditional-write behavior on redemption and decisions.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleyhq/parley/internal/auth"
)

// UserRepository is an in-memory auth.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[ulid.ULID]*auth.User
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[ulid.ULID]*auth.User)}
}

// Create stores a new user, enforcing unique username and email.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Username, user.Username) {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(auth.ErrDuplicate)
		}
		if u.Email != nil && user.Email != nil && strings.EqualFold(*u.Email, *user.Email) {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(auth.ErrDuplicate)
		}
	}

	clone := *user
	r.users[user.ID] = &clone
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	clone := *u
	return &clone, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").
		With("username", username).
		Wrap(auth.ErrNotFound)
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email != nil && strings.EqualFold(*u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// Update updates username, email, staff/disabled flags, and the login
// failure counters.
func (r *UserRepository) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}

	for id, u := range r.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(u.Username, user.Username) {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(auth.ErrDuplicate)
		}
		if u.Email != nil && user.Email != nil && strings.EqualFold(*u.Email, *user.Email) {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(auth.ErrDuplicate)
		}
	}

	existing.Username = user.Username
	existing.Email = user.Email
	existing.IsStaff = user.IsStaff
	existing.FailedAttempts = user.FailedAttempts
	existing.LockedUntil = user.LockedUntil
	existing.DisabledAt = user.DisabledAt
	existing.UpdatedAt = time.Now()
	return nil
}

// UpdatePassword updates only the password hash.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

// SetStaff flips the staff flag.
func (r *UserRepository) SetStaff(_ context.Context, id ulid.ULID, isStaff bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	u.IsStaff = isStaff
	u.UpdatedAt = time.Now()
	return nil
}

// BumpSessionEpoch atomically increments the session epoch and returns the
// new value.
func (r *UserRepository) BumpSessionEpoch(_ context.Context, id ulid.ULID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return 0, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	u.SessionEpoch++
	u.UpdatedAt = time.Now()
	return u.SessionEpoch, nil
}

// Disable soft-disables the account.
func (r *UserRepository) Disable(_ context.Context, id ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	u.DisabledAt = &at
	u.UpdatedAt = at
	return nil
}

// Count returns the total number of accounts.
func (r *UserRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
