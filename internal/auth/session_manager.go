// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionManager creates, validates, and revokes login sessions.
//
// Revocation comes in two shapes: Revoke deletes a single session row;
// RevokeAll bumps the owner's session epoch, which atomically orphans every
// session created before the bump, including ones racing a concurrent login.
type SessionManager struct {
	users    UserRepository
	sessions SessionRepository
	logger   *slog.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(users UserRepository, sessions SessionRepository, logger *slog.Logger) (*SessionManager, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{users: users, sessions: sessions, logger: logger}, nil
}

// Create generates a fresh session for the user and returns the session and
// its plaintext token. The token never touches storage.
func (m *SessionManager) Create(ctx context.Context, user *User, userAgent, ipAddress string) (*Session, string, error) {
	token, hash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(user.ID, user.SessionEpoch, hash, userAgent, ipAddress)
	if err != nil {
		return nil, "", err
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return session, token, nil
}

// Validate resolves a plaintext token to its session and owner. It fails
// with SESSION_INVALID for absent, revoked, or epoch-stale tokens and
// SESSION_EXPIRED for timed-out ones; callers treat both as unauthenticated.
// On success the sliding expiry is extended, capped at the absolute lifetime.
func (m *SessionManager) Validate(ctx context.Context, token string) (*User, *Session, error) {
	if token == "" {
		return nil, nil, oops.Code("SESSION_INVALID").Errorf("session token cannot be empty")
	}

	session, err := m.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return nil, nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := time.Now()
	if session.IsExpiredAt(now) {
		return nil, nil, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return nil, nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session owner").
			Wrap(err)
	}

	// Epoch check closes the revoke-all race: a session stamped before the
	// bump can never validate, even if it was inserted mid-revocation.
	if session.Epoch != user.SessionEpoch {
		return nil, nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
	}

	if user.IsDisabled() {
		return nil, nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
	}

	// Extend the sliding window. Best effort; validation succeeds regardless.
	if err := m.sessions.Extend(ctx, session.ID, now, session.NextExpiry(now)); err != nil {
		m.logger.Warn("failed to extend session", "session_id", session.ID.String(), "error", err)
	}

	return user, session, nil
}

// Revoke deletes the session behind a plaintext token. Revoking an unknown
// or already-revoked token is a no-op.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.sessions.DeleteByTokenHash(ctx, HashSessionToken(token)); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// RevokeAll invalidates every session for the user and returns the new
// session epoch. The epoch bump is the authoritative revocation; the row
// sweep afterwards is cleanup and its failure is only logged.
func (m *SessionManager) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	epoch, err := m.users.BumpSessionEpoch(ctx, userID)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "bump session epoch").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if err := m.sessions.DeleteByUser(ctx, userID); err != nil {
		m.logger.Warn("failed to sweep revoked sessions", "user_id", userID.String(), "error", err)
	}

	return epoch, nil
}
