// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenPurpose distinguishes the workflows a purpose token can drive.
type TokenPurpose string

// Known token purposes.
const (
	PurposePasswordReset  TokenPurpose = "password_reset"
	PurposeAdminElevation TokenPurpose = "admin_elevation"
)

// Purpose token configuration.
const (
	PurposeTokenBytes = 32 // 32 bytes = 64 hex chars

	// ResetTokenTTL is the validity window for password reset tokens.
	ResetTokenTTL = 30 * time.Minute

	// ElevationTokenTTL is the validity window for admin elevation tokens.
	ElevationTokenTTL = 72 * time.Hour
)

// PurposeToken is a single-use, time-limited credential bound to a subject
// and a purpose. The plaintext is returned exactly once at issuance.
type PurposeToken struct {
	ID         ulid.ULID
	SubjectID  ulid.ULID
	Purpose    TokenPurpose
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// NewPurposeToken creates a validated PurposeToken.
func NewPurposeToken(subjectID ulid.ULID, purpose TokenPurpose, tokenHash string, ttl time.Duration) (*PurposeToken, error) {
	if subjectID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_SUBJECT").Errorf("subject ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("TOKEN_INVALID_TTL").Errorf("ttl must be positive")
	}

	now := time.Now()
	return &PurposeToken{
		ID:        ulid.Make(),
		SubjectID: subjectID,
		Purpose:   purpose,
		TokenHash: tokenHash,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// GeneratePurposeToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GeneratePurposeToken() (token, hash string, err error) {
	raw := make([]byte, PurposeTokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(raw)
	hash = HashPurposeToken(token)

	return token, hash, nil
}

// HashPurposeToken computes the SHA-256 hash of a purpose token.
func HashPurposeToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyPurposeToken checks a plaintext token against a stored hash in
// constant time.
func VerifyPurposeToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashPurposeToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// TokenRepository manages purpose token persistence.
//
// Redeem is the concurrency-critical operation: marking a token consumed must
// be a single conditional write so that N racing redemptions produce exactly
// one winner. Implementations must not use read-then-write.
type TokenRepository interface {
	// Create stores a new token and, in the same atomic step, retires any
	// unconsumed tokens of the same purpose for the same subject.
	Create(ctx context.Context, token *PurposeToken) error

	// Redeem consumes the token identified by hash and purpose, returning
	// the subject ID. Losers fail with ErrTokenNotFound, ErrTokenExpired,
	// or ErrTokenAlreadyUsed.
	Redeem(ctx context.Context, tokenHash string, purpose TokenPurpose, now time.Time) (ulid.ULID, error)

	// RetireBySubject marks all unconsumed tokens of the given purpose for
	// the subject as consumed. Used when a password change makes
	// outstanding reset tokens moot.
	RetireBySubject(ctx context.Context, subjectID ulid.ULID, purpose TokenPurpose, now time.Time) error

	// DeleteExpired removes expired rows and returns the count. Optional
	// housekeeping; correctness never depends on it.
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenIssuer issues and redeems single-use purpose tokens.
type TokenIssuer struct {
	tokens TokenRepository
}

// NewTokenIssuer creates a new TokenIssuer.
func NewTokenIssuer(tokens TokenRepository) (*TokenIssuer, error) {
	if tokens == nil {
		return nil, oops.Errorf("token repository is required")
	}
	return &TokenIssuer{tokens: tokens}, nil
}

// Issue generates a token for the subject and stores its hash. Issuing
// retires any earlier unconsumed token of the same purpose, so at most one
// redeemable token per subject and purpose exists at a time.
func (i *TokenIssuer) Issue(ctx context.Context, subjectID ulid.ULID, purpose TokenPurpose, ttl time.Duration) (string, error) {
	token, hash, err := GeneratePurposeToken()
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").
			With("purpose", string(purpose)).
			Wrap(err)
	}

	record, err := NewPurposeToken(subjectID, purpose, hash, ttl)
	if err != nil {
		return "", err
	}

	if err := i.tokens.Create(ctx, record); err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "persist token").
			With("purpose", string(purpose)).
			Wrap(err)
	}

	return token, nil
}

// Redeem consumes a plaintext token and returns its subject. Exactly one of
// any number of concurrent redemptions of the same token succeeds.
func (i *TokenIssuer) Redeem(ctx context.Context, token string, purpose TokenPurpose) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
	}

	subjectID, err := i.tokens.Redeem(ctx, HashPurposeToken(token), purpose, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			return ulid.ULID{}, oops.Code("TOKEN_NOT_FOUND").Wrap(err)
		case errors.Is(err, ErrTokenExpired):
			return ulid.ULID{}, oops.Code("TOKEN_EXPIRED").Wrap(err)
		case errors.Is(err, ErrTokenAlreadyUsed):
			return ulid.ULID{}, oops.Code("TOKEN_ALREADY_USED").Wrap(err)
		default:
			return ulid.ULID{}, oops.Code("TOKEN_REDEEM_FAILED").
				With("purpose", string(purpose)).
				Wrap(err)
		}
	}

	return subjectID, nil
}

// Retire marks all unconsumed tokens of a purpose for the subject consumed.
func (i *TokenIssuer) Retire(ctx context.Context, subjectID ulid.ULID, purpose TokenPurpose) error {
	if err := i.tokens.RetireBySubject(ctx, subjectID, purpose, time.Now()); err != nil {
		return oops.Code("TOKEN_RETIRE_FAILED").
			With("purpose", string(purpose)).
			With("subject_id", subjectID.String()).
			Wrap(err)
	}
	return nil
}
