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

// TokenRepository implements auth.TokenRepository using PostgreSQL.
//
// Redemption is a single conditional UPDATE on consumed_at; the row-level
// atomicity of that statement is what guarantees exactly one winner among
// concurrent redemptions.
type TokenRepository struct {
	db DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a new token, retiring any unconsumed tokens of the same
// purpose for the same subject in one transaction.
func (r *TokenRepository) Create(ctx context.Context, token *auth.PurposeToken) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	_, err = tx.Exec(ctx, `
		UPDATE purpose_tokens SET consumed_at = $3
		WHERE subject_id = $1 AND purpose = $2 AND consumed_at IS NULL
	`, token.SubjectID.String(), string(token.Purpose), token.CreatedAt)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "retire prior tokens").
			Wrap(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO purpose_tokens (id, subject_id, purpose, token_hash, created_at, expires_at, consumed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.ID.String(),
		token.SubjectID.String(),
		string(token.Purpose),
		token.TokenHash,
		token.CreatedAt,
		token.ExpiresAt,
		token.ConsumedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert token").
			With("subject_id", token.SubjectID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return nil
}

// Redeem consumes the token in a single compare-and-set. The WHERE clause
// only matches live, unconsumed rows; losers get a diagnostic read to pick
// the right sentinel, which never affects the exactly-once outcome.
func (r *TokenRepository) Redeem(ctx context.Context, tokenHash string, purpose auth.TokenPurpose, now time.Time) (ulid.ULID, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE purpose_tokens SET consumed_at = $3
		WHERE token_hash = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > $3
		RETURNING subject_id
	`, tokenHash, string(purpose), now)

	var subjectIDStr string
	err := row.Scan(&subjectIDStr)
	if err == nil {
		subjectID, parseErr := ulid.Parse(subjectIDStr)
		if parseErr != nil {
			return ulid.ULID{}, oops.Code("TOKEN_INVALID_SUBJECT_ID").
				With("subject_id", subjectIDStr).
				Wrap(parseErr)
		}
		return subjectID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, oops.Code("TOKEN_REDEEM_FAILED").
			With("operation", "consume token").
			Wrap(err)
	}

	return ulid.ULID{}, r.diagnose(ctx, tokenHash, purpose, now)
}

// diagnose distinguishes why a redemption found no live row.
func (r *TokenRepository) diagnose(ctx context.Context, tokenHash string, purpose auth.TokenPurpose, now time.Time) error {
	row := r.db.QueryRow(ctx, `
		SELECT expires_at, consumed_at
		FROM purpose_tokens
		WHERE token_hash = $1 AND purpose = $2
	`, tokenHash, string(purpose))

	var (
		expiresAt  time.Time
		consumedAt *time.Time
	)
	err := row.Scan(&expiresAt, &consumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.ErrTokenNotFound
	}
	if err != nil {
		return oops.Code("TOKEN_REDEEM_FAILED").
			With("operation", "diagnose failed redemption").
			Wrap(err)
	}

	if consumedAt != nil {
		return auth.ErrTokenAlreadyUsed
	}
	if !expiresAt.After(now) {
		return auth.ErrTokenExpired
	}
	// Row became live again between UPDATE and SELECT; cannot happen with
	// monotonic consumed_at, but fail closed regardless.
	return auth.ErrTokenNotFound
}

// RetireBySubject marks all unconsumed tokens of the purpose as consumed.
func (r *TokenRepository) RetireBySubject(ctx context.Context, subjectID ulid.ULID, purpose auth.TokenPurpose, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE purpose_tokens SET consumed_at = $3
		WHERE subject_id = $1 AND purpose = $2 AND consumed_at IS NULL
	`, subjectID.String(), string(purpose), now)
	if err != nil {
		return oops.Code("TOKEN_RETIRE_FAILED").
			With("operation", "retire tokens by subject").
			With("subject_id", subjectID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes expired rows and returns the count.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM purpose_tokens WHERE expires_at < $1
	`, time.Now())
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
