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

// ElevationRepository implements auth.ElevationRepository using PostgreSQL.
type ElevationRepository struct {
	db DB
}

// NewElevationRepository creates a new ElevationRepository.
func NewElevationRepository(db DB) *ElevationRepository {
	return &ElevationRepository{db: db}
}

const elevationColumns = `id, user_id, status, token_hash, created_at, decided_at`

// Create stores a new pending request.
func (r *ElevationRepository) Create(ctx context.Context, req *auth.ElevationRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO elevation_requests (id, user_id, status, token_hash, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		req.ID.String(),
		req.UserID.String(),
		string(req.Status),
		req.TokenHash,
		req.CreatedAt,
		req.DecidedAt,
	)
	if err != nil {
		return oops.Code("ELEVATION_CREATE_FAILED").
			With("operation", "insert elevation request").
			With("user_id", req.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetPendingByUser retrieves the user's newest unexpired pending request.
func (r *ElevationRepository) GetPendingByUser(ctx context.Context, userID ulid.ULID, now time.Time) (*auth.ElevationRequest, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+elevationColumns+`
		FROM elevation_requests
		WHERE user_id = $1 AND status = $2 AND created_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`, userID.String(), string(auth.ElevationPending), now.Add(-auth.ElevationTokenTTL))

	req, err := scanElevation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ELEVATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ELEVATION_GET_PENDING_FAILED").
			With("operation", "get pending request by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return req, nil
}

// GetByTokenHash retrieves a request by its token hash.
func (r *ElevationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ElevationRequest, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+elevationColumns+`
		FROM elevation_requests
		WHERE token_hash = $1
	`, tokenHash)

	req, err := scanElevation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ELEVATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ELEVATION_GET_BY_TOKEN_FAILED").
			With("operation", "get request by token hash").
			Wrap(err)
	}
	return req, nil
}

// Decide transitions the pending request to a terminal status with a single
// conditional UPDATE; concurrent decisions on one token get one winner.
func (r *ElevationRepository) Decide(ctx context.Context, tokenHash string, status auth.ElevationStatus, decidedAt, cutoff time.Time) (ulid.ULID, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE elevation_requests SET status = $2, decided_at = $3
		WHERE token_hash = $1 AND status = $4 AND created_at > $5
		RETURNING user_id
	`, tokenHash, string(status), decidedAt, string(auth.ElevationPending), cutoff)

	var userIDStr string
	err := row.Scan(&userIDStr)
	if err == nil {
		userID, parseErr := ulid.Parse(userIDStr)
		if parseErr != nil {
			return ulid.ULID{}, oops.Code("ELEVATION_INVALID_USER_ID").
				With("user_id", userIDStr).
				Wrap(parseErr)
		}
		return userID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, oops.Code("ELEVATION_DECIDE_FAILED").
			With("operation", "decide request").
			Wrap(err)
	}

	return ulid.ULID{}, r.diagnose(ctx, tokenHash, cutoff)
}

// diagnose distinguishes why a decision found no pending row. Requests past
// their window are lazily marked expired while we're here.
func (r *ElevationRepository) diagnose(ctx context.Context, tokenHash string, cutoff time.Time) error {
	req, err := r.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.ErrTokenNotFound
		}
		return err
	}

	if req.Status != auth.ElevationPending {
		return auth.ErrTokenAlreadyUsed
	}

	// Pending but past the window: lazily expire. Best effort.
	_, _ = r.db.Exec(ctx, `
		UPDATE elevation_requests SET status = $2
		WHERE token_hash = $1 AND status = $3 AND created_at <= $4
	`, tokenHash, string(auth.ElevationExpired), string(auth.ElevationPending), cutoff) //nolint:errcheck // lazy expiry is advisory
	return auth.ErrTokenExpired
}

// List returns all requests, newest first.
func (r *ElevationRepository) List(ctx context.Context) ([]*auth.ElevationRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+elevationColumns+`
		FROM elevation_requests
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, oops.Code("ELEVATION_LIST_FAILED").
			With("operation", "list requests").
			Wrap(err)
	}
	defer rows.Close()

	var reqs []*auth.ElevationRequest
	for rows.Next() {
		req, err := scanElevation(rows)
		if err != nil {
			return nil, oops.Code("ELEVATION_SCAN_FAILED").
				With("operation", "scan request row").
				Wrap(err)
		}
		reqs = append(reqs, req)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("ELEVATION_ROWS_ERROR").
			With("operation", "iterate request rows").
			Wrap(err)
	}

	return reqs, nil
}

// CountPending returns the number of unexpired pending requests.
func (r *ElevationRepository) CountPending(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM elevation_requests
		WHERE status = $1 AND created_at > $2
	`, string(auth.ElevationPending), now.Add(-auth.ElevationTokenTTL)).Scan(&n)
	if err != nil {
		return 0, oops.Code("ELEVATION_COUNT_FAILED").Wrap(err)
	}
	return n, nil
}

// scanElevation scans a single row into an ElevationRequest.
// Callers are responsible for handling pgx.ErrNoRows.
func scanElevation(row pgx.Row) (*auth.ElevationRequest, error) {
	var (
		idStr     string
		userIDStr string
		status    string
		tokenHash string
		createdAt time.Time
		decidedAt *time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &status, &tokenHash, &createdAt, &decidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("ELEVATION_SCAN_FAILED").
			With("operation", "scan elevation request").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ELEVATION_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("ELEVATION_INVALID_USER_ID").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.ElevationRequest{
		ID:        id,
		UserID:    userID,
		Status:    auth.ElevationStatus(status),
		TokenHash: tokenHash,
		CreatedAt: createdAt,
		DecidedAt: decidedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.ElevationRepository = (*ElevationRepository)(nil)
