// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ElevationStatus is the lifecycle state of an admin elevation request.
type ElevationStatus string

// Elevation request states. A request leaves pending exactly once.
const (
	ElevationPending  ElevationStatus = "pending"
	ElevationApproved ElevationStatus = "approved"
	ElevationRejected ElevationStatus = "rejected"
	ElevationExpired  ElevationStatus = "expired"
)

// ElevationDecision is the approver-facing action carried on redemption.
type ElevationDecision string

// Approver decisions.
const (
	DecisionApprove ElevationDecision = "approve"
	DecisionReject  ElevationDecision = "reject"
)

// ParseElevationDecision maps a query-string value to a decision. Empty
// defaults to approve, matching the emailed approval link.
func ParseElevationDecision(s string) (ElevationDecision, error) {
	switch s {
	case "", "approve":
		return DecisionApprove, nil
	case "reject":
		return DecisionReject, nil
	default:
		return "", oops.Code("ELEVATION_INVALID_DECISION").
			With("decision", s).
			Errorf("decision must be approve or reject")
	}
}

// ElevationRequest is a user's request to be granted staff privileges,
// decided out-of-band by an approver redeeming a single-use token.
type ElevationRequest struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Status    ElevationStatus
	TokenHash string
	CreatedAt time.Time
	DecidedAt *time.Time
}

// NewElevationRequest creates a pending elevation request.
func NewElevationRequest(userID ulid.ULID, tokenHash string) (*ElevationRequest, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("ELEVATION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("ELEVATION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	return &ElevationRequest{
		ID:        ulid.Make(),
		UserID:    userID,
		Status:    ElevationPending,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpiredAt returns true if a still-pending request is past its window.
func (r *ElevationRequest) IsExpiredAt(t time.Time) bool {
	return r.Status == ElevationPending && t.After(r.CreatedAt.Add(ElevationTokenTTL))
}

// ElevationRepository manages elevation request persistence.
//
// Decide carries the same exactly-once requirement as token redemption: the
// pending→decided transition must be one conditional write.
type ElevationRepository interface {
	// Create stores a new pending request.
	Create(ctx context.Context, req *ElevationRequest) error

	// GetPendingByUser retrieves the user's unexpired pending request,
	// or ErrNotFound.
	GetPendingByUser(ctx context.Context, userID ulid.ULID, now time.Time) (*ElevationRequest, error)

	// GetByTokenHash retrieves a request by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*ElevationRequest, error)

	// Decide transitions the pending request identified by hash to the
	// given terminal status, returning the requesting user's ID. Requests
	// that are unknown, already decided, or past their window fail with
	// ErrTokenNotFound, ErrTokenAlreadyUsed, or ErrTokenExpired.
	Decide(ctx context.Context, tokenHash string, status ElevationStatus, decidedAt, cutoff time.Time) (ulid.ULID, error)

	// List returns all requests, newest first.
	List(ctx context.Context) ([]*ElevationRequest, error)

	// CountPending returns the number of unexpired pending requests.
	CountPending(ctx context.Context, now time.Time) (int64, error)
}
