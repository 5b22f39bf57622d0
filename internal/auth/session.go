// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32 // 32 bytes = 64 hex chars

	// SessionIdleTimeout is the sliding expiry window, extended on each
	// successful validation.
	SessionIdleTimeout = 24 * time.Hour

	// SessionMaxLifetime caps the sliding window: no session outlives this,
	// no matter how busy it is.
	SessionMaxLifetime = 30 * 24 * time.Hour
)

// Session represents a logged-in browser or client.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string

	// Epoch is the owner's SessionEpoch at creation time. A session whose
	// epoch lags the user's current epoch has been revoked.
	Epoch int64

	UserAgent  string
	IPAddress  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// NewSession creates a validated Session. UserAgent and IPAddress are
// optional and may be empty.
func NewSession(userID ulid.ULID, epoch int64, tokenHash, userAgent, ipAddress string) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}

	now := time.Now()
	return &Session{
		ID:         ulid.Make(),
		UserID:     userID,
		TokenHash:  tokenHash,
		Epoch:      epoch,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		ExpiresAt:  now.Add(SessionIdleTimeout),
		CreatedAt:  now,
		LastSeenAt: now,
	}, nil
}

// IsExpiredAt returns true if the session would be expired at the given time,
// either past its sliding expiry or past its absolute lifetime.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt) || t.After(s.CreatedAt.Add(SessionMaxLifetime))
}

// NextExpiry computes the sliding expiry after a successful validation at
// the given time: now + idle window, capped at the absolute lifetime.
func (s *Session) NextExpiry(t time.Time) time.Time {
	next := t.Add(SessionIdleTimeout)
	if cap := s.CreatedAt.Add(SessionMaxLifetime); next.After(cap) {
		return cap
	}
	return next
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext goes to the
// client; only the hash touches the database.
func GenerateSessionToken() (token, hash string, err error) {
	raw := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	token = hex.EncodeToString(raw)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA-256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifySessionToken checks a plaintext token against a stored hash in
// constant time.
func VerifySessionToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashSessionToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// GetByUser retrieves all sessions for a user, newest first.
	GetByUser(ctx context.Context, userID ulid.ULID) ([]*Session, error)

	// Extend updates the LastSeenAt and ExpiresAt timestamps.
	Extend(ctx context.Context, id ulid.ULID, lastSeen, expires time.Time) error

	// DeleteByTokenHash removes a session. Deleting an unknown token is a
	// no-op, not an error; revocation is idempotent.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUser removes all sessions for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes all expired sessions and returns the count.
	DeleteExpired(ctx context.Context) (int64, error)
}
