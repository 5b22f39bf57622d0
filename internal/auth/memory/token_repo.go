// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/parleyhq/parley/internal/auth"
)

// TokenRepository is an in-memory auth.TokenRepository. A single mutex covers
// the whole redeem path, so concurrent redemptions of one token get exactly
// one winner, same as the conditional UPDATE in postgres.
type TokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*auth.PurposeToken
}

// NewTokenRepository creates an empty in-memory token repository.
func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[string]*auth.PurposeToken)}
}

// Create stores a new token, retiring prior unconsumed tokens of the same
// purpose for the same subject.
func (r *TokenRepository) Create(_ context.Context, token *auth.PurposeToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens {
		if t.SubjectID == token.SubjectID && t.Purpose == token.Purpose && t.ConsumedAt == nil {
			at := token.CreatedAt
			t.ConsumedAt = &at
		}
	}

	clone := *token
	r.tokens[token.TokenHash] = &clone
	return nil
}

// Redeem consumes the token, returning the subject ID.
func (r *TokenRepository) Redeem(_ context.Context, tokenHash string, purpose auth.TokenPurpose, now time.Time) (ulid.ULID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok || t.Purpose != purpose {
		return ulid.ULID{}, auth.ErrTokenNotFound
	}
	if t.ConsumedAt != nil {
		return ulid.ULID{}, auth.ErrTokenAlreadyUsed
	}
	if !t.ExpiresAt.After(now) {
		return ulid.ULID{}, auth.ErrTokenExpired
	}

	at := now
	t.ConsumedAt = &at
	return t.SubjectID, nil
}

// RetireBySubject marks all unconsumed tokens of the purpose as consumed.
func (r *TokenRepository) RetireBySubject(_ context.Context, subjectID ulid.ULID, purpose auth.TokenPurpose, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens {
		if t.SubjectID == subjectID && t.Purpose == purpose && t.ConsumedAt == nil {
			at := now
			t.ConsumedAt = &at
		}
	}
	return nil
}

// DeleteExpired removes expired rows and returns the count.
func (r *TokenRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var n int64
	for hash, t := range r.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.tokens, hash)
			n++
		}
	}
	return n, nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
