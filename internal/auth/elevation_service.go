// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// ElevationService handles the become-admin workflow: a user asks for staff
// privileges, an approver redeems a single-use token to approve or reject.
type ElevationService struct {
	users    UserRepository
	requests ElevationRepository
	sink     NotificationSink
	approver string
	baseURL  string
	logger   *slog.Logger
}

// NewElevationService creates a new ElevationService. approver is the
// notification recipient for new requests (typically an operator mailbox).
func NewElevationService(
	users UserRepository,
	requests ElevationRepository,
	sink NotificationSink,
	approver, baseURL string,
	logger *slog.Logger,
) (*ElevationService, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if requests == nil {
		return nil, oops.Errorf("elevation repository is required")
	}
	if sink == nil {
		return nil, oops.Errorf("notification sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevationService{
		users:    users,
		requests: requests,
		sink:     sink,
		approver: approver,
		baseURL:  baseURL,
		logger:   logger,
	}, nil
}

// Request files an elevation request for the user and notifies the approver.
// Fails with AUTH_ALREADY_STAFF for staff users and ELEVATION_PENDING_EXISTS
// while an unexpired request is outstanding.
func (s *ElevationService) Request(ctx context.Context, user *User) (*ElevationRequest, error) {
	if user.IsStaff {
		return nil, oops.Code("AUTH_ALREADY_STAFF").Errorf("user is already staff")
	}

	now := time.Now()
	if _, err := s.requests.GetPendingByUser(ctx, user.ID, now); err == nil {
		return nil, oops.Code("ELEVATION_PENDING_EXISTS").Errorf("an elevation request is already pending")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("ELEVATION_REQUEST_FAILED").
			With("operation", "check pending request").
			Wrap(err)
	}

	token, hash, err := GeneratePurposeToken()
	if err != nil {
		return nil, oops.Code("ELEVATION_REQUEST_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	req, err := NewElevationRequest(user.ID, hash)
	if err != nil {
		return nil, err
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, oops.Code("ELEVATION_REQUEST_FAILED").
			With("operation", "persist request").
			Wrap(err)
	}

	// Request is on record whether or not the mail goes out.
	s.notifyApprover(ctx, user, token)

	s.logger.Info("elevation requested",
		"user_id", user.ID.String(), "request_id", req.ID.String())
	return req, nil
}

// Decide redeems an elevation token with the approver's decision. Approval
// flips the requester's staff flag. Exactly one of any number of concurrent
// decisions on the same token takes effect.
func (s *ElevationService) Decide(ctx context.Context, token string, decision ElevationDecision) (ElevationStatus, error) {
	if token == "" {
		return "", oops.Code("TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
	}

	status := ElevationRejected
	if decision == DecisionApprove {
		status = ElevationApproved
	}

	now := time.Now()
	userID, err := s.requests.Decide(ctx, HashPurposeToken(token), status, now, now.Add(-ElevationTokenTTL))
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			return "", oops.Code("TOKEN_NOT_FOUND").Wrap(err)
		case errors.Is(err, ErrTokenExpired):
			return "", oops.Code("TOKEN_EXPIRED").Wrap(err)
		case errors.Is(err, ErrTokenAlreadyUsed):
			return "", oops.Code("TOKEN_ALREADY_USED").Wrap(err)
		default:
			return "", oops.Code("ELEVATION_DECIDE_FAILED").
				With("operation", "decide request").
				Wrap(err)
		}
	}

	if status == ElevationApproved {
		if err := s.users.SetStaff(ctx, userID, true); err != nil {
			return "", oops.Code("ELEVATION_DECIDE_FAILED").
				With("operation", "set staff flag").
				With("user_id", userID.String()).
				Wrap(err)
		}
	}

	s.logger.Info("elevation decided",
		"user_id", userID.String(), "status", string(status))
	return status, nil
}

// List returns all elevation requests for the staff dashboard.
func (s *ElevationService) List(ctx context.Context) ([]*ElevationRequest, error) {
	reqs, err := s.requests.List(ctx)
	if err != nil {
		return nil, oops.Code("ELEVATION_LIST_FAILED").Wrap(err)
	}
	return reqs, nil
}

// CountPending returns the number of open requests.
func (s *ElevationService) CountPending(ctx context.Context) (int64, error) {
	n, err := s.requests.CountPending(ctx, time.Now())
	if err != nil {
		return 0, oops.Code("ELEVATION_COUNT_FAILED").Wrap(err)
	}
	return n, nil
}

func (s *ElevationService) notifyApprover(ctx context.Context, user *User, token string) {
	if s.approver == "" {
		s.logger.Warn("no elevation approver configured; request filed without notification",
			"user_id", user.ID.String())
		return
	}

	email := "n/a"
	if user.Email != nil {
		email = *user.Email
	}
	link := fmt.Sprintf("%s/admin/requests/approve/%s", s.baseURL, token)
	n := Notification{
		Recipient: s.approver,
		Subject:   "New admin access request",
		Body: fmt.Sprintf(
			"A user has requested admin access.\n\nUser: %s\nEmail: %s\nApprove: %s?decision=approve\nReject: %s?decision=reject\n\nThe link expires in %s.",
			user.Username, email, link, link, ElevationTokenTTL,
		),
	}
	if err := s.sink.Send(ctx, n); err != nil {
		s.logger.Warn("failed to deliver elevation notification",
			"user_id", user.ID.String(), "error", err)
	}
}
