// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleyhq/parley/internal/auth"
)

// SessionRepository is an in-memory auth.SessionRepository keyed by token
// hash.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*auth.Session
}

// NewSessionRepository creates an empty in-memory session repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*auth.Session)}
}

// Create stores a new session.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *session
	r.sessions[session.TokenHash] = &clone
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	clone := *s
	return &clone, nil
}

// GetByUser retrieves all sessions for a user, newest first.
func (r *SessionRepository) GetByUser(_ context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*auth.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			clone := *s
			sessions = append(sessions, &clone)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Extend updates the LastSeenAt and ExpiresAt timestamps.
func (r *SessionRepository) Extend(_ context.Context, id ulid.ULID, lastSeen, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.ID == id {
			s.LastSeenAt = lastSeen
			s.ExpiresAt = expires
			return nil
		}
	}
	return oops.Code("SESSION_NOT_FOUND").
		With("id", id.String()).
		Wrap(auth.ErrNotFound)
}

// DeleteByTokenHash removes a session; unknown tokens are a no-op.
func (r *SessionRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, tokenHash)
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, hash)
		}
	}
	return nil
}

// DeleteExpired removes all expired sessions and returns the count.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var n int64
	for hash, s := range r.sessions {
		if s.ExpiresAt.Before(now) {
			delete(r.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
