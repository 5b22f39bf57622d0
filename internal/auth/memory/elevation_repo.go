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

// ElevationRepository is an in-memory auth.ElevationRepository. The mutex
// makes Decide's pending check and status write a single step, matching the
// postgres conditional UPDATE.
type ElevationRepository struct {
	mu       sync.Mutex
	requests map[string]*auth.ElevationRequest
}

// NewElevationRepository creates an empty in-memory elevation repository.
func NewElevationRepository() *ElevationRepository {
	return &ElevationRepository{requests: make(map[string]*auth.ElevationRequest)}
}

// Create stores a new pending request.
func (r *ElevationRepository) Create(_ context.Context, req *auth.ElevationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *req
	r.requests[req.TokenHash] = &clone
	return nil
}

// GetPendingByUser retrieves the user's newest unexpired pending request.
func (r *ElevationRepository) GetPendingByUser(_ context.Context, userID ulid.ULID, now time.Time) (*auth.ElevationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-auth.ElevationTokenTTL)
	var newest *auth.ElevationRequest
	for _, req := range r.requests {
		if req.UserID != userID || req.Status != auth.ElevationPending || !req.CreatedAt.After(cutoff) {
			continue
		}
		if newest == nil || req.CreatedAt.After(newest.CreatedAt) {
			newest = req
		}
	}
	if newest == nil {
		return nil, oops.Code("ELEVATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	clone := *newest
	return &clone, nil
}

// GetByTokenHash retrieves a request by its token hash.
func (r *ElevationRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.ElevationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[tokenHash]
	if !ok {
		return nil, oops.Code("ELEVATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	clone := *req
	return &clone, nil
}

// Decide transitions the pending request to a terminal status.
func (r *ElevationRepository) Decide(_ context.Context, tokenHash string, status auth.ElevationStatus, decidedAt, cutoff time.Time) (ulid.ULID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[tokenHash]
	if !ok {
		return ulid.ULID{}, auth.ErrTokenNotFound
	}
	if req.Status != auth.ElevationPending {
		return ulid.ULID{}, auth.ErrTokenAlreadyUsed
	}
	if !req.CreatedAt.After(cutoff) {
		req.Status = auth.ElevationExpired
		return ulid.ULID{}, auth.ErrTokenExpired
	}

	req.Status = status
	at := decidedAt
	req.DecidedAt = &at
	return req.UserID, nil
}

// List returns all requests, newest first.
func (r *ElevationRepository) List(_ context.Context) ([]*auth.ElevationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reqs := make([]*auth.ElevationRequest, 0, len(r.requests))
	for _, req := range r.requests {
		clone := *req
		reqs = append(reqs, &clone)
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
	return reqs, nil
}

// CountPending returns the number of unexpired pending requests.
func (r *ElevationRepository) CountPending(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-auth.ElevationTokenTTL)
	var n int64
	for _, req := range r.requests {
		if req.Status == auth.ElevationPending && req.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// Compile-time interface check.
var _ auth.ElevationRepository = (*ElevationRepository)(nil)
