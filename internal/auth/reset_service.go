// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// PasswordResetService handles the forgot/reset password flow.
type PasswordResetService struct {
	users    UserRepository
	tokens   *TokenIssuer
	sessions *SessionManager
	hasher   PasswordHasher
	sink     NotificationSink
	baseURL  string
	logger   *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService. baseURL is the
// externally reachable prefix used to build reset links.
func NewPasswordResetService(
	users UserRepository,
	tokens *TokenIssuer,
	sessions *SessionManager,
	hasher PasswordHasher,
	sink NotificationSink,
	baseURL string,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if sink == nil {
		return nil, oops.Errorf("notification sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordResetService{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		sink:     sink,
		baseURL:  baseURL,
		logger:   logger,
	}, nil
}

// RequestReset issues a reset token for the identifier's account and sends
// it to the account's email. Unknown identifiers and accounts without an
// email return success with no issuance, so callers learn nothing about
// which accounts exist. Only a storage fault is an error.
func (s *PasswordResetService) RequestReset(ctx context.Context, identifier string) error {
	user, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "lookup user").
			Wrap(err)
	}

	if user.IsDisabled() || user.Email == nil {
		s.logger.Info("reset requested for account without deliverable email",
			"user_id", user.ID.String())
		return nil
	}

	token, err := s.tokens.Issue(ctx, user.ID, PurposePasswordReset, ResetTokenTTL)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}

	// The token is already persisted and redeemable; a failed send must not
	// unwind it. Degrade to logging.
	n := Notification{
		Recipient: *user.Email,
		Subject:   "Reset your Parley password",
		Body: fmt.Sprintf(
			"A password reset was requested for %s.\n\nReset link: %s/auth/password/reset?token=%s\n\nThe link expires in %s. If you didn't ask for this, ignore it.",
			user.Username, s.baseURL, token, ResetTokenTTL,
		),
	}
	if err := s.sink.Send(ctx, n); err != nil {
		s.logger.Warn("failed to deliver password reset notification",
			"user_id", user.ID.String(), "error", err)
	}

	return nil
}

// ResetPassword redeems a reset token and installs the new password, then
// revokes every session and outstanding reset token for the subject.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	subjectID, err := s.tokens.Redeem(ctx, token, PurposePasswordReset)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, subjectID, hash); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", subjectID.String()).
			Wrap(err)
	}

	// Other unconsumed reset tokens for this user die with the change.
	if err := s.tokens.Retire(ctx, subjectID, PurposePasswordReset); err != nil {
		s.logger.Warn("failed to retire sibling reset tokens",
			"user_id", subjectID.String(), "error", err)
	}

	if _, err := s.sessions.RevokeAll(ctx, subjectID); err != nil {
		return err
	}

	s.logger.Info("password reset completed", "user_id", subjectID.String())
	return nil
}

func (s *PasswordResetService) lookup(ctx context.Context, identifier string) (*User, error) {
	user, err := s.users.GetByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, ErrNotFound) && LooksLikeEmail(identifier) {
		return s.users.GetByEmail(ctx, identifier)
	}
	return nil, err
}
