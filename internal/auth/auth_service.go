// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Service implements the register/login/logout/profile use cases. It is the
// only authentication type the HTTP layer constructs handlers around.
type Service struct {
	users    UserRepository
	sessions *SessionManager
	tokens   *TokenIssuer
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(users UserRepository, sessions *SessionManager, tokens *TokenIssuer, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		logger:   logger,
	}, nil
}

// dummyPasswordHash is verified against when a login identifier doesn't
// resolve, so response time doesn't reveal whether the account exists.
// This is NOT a real credential; it can never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing-attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates an account and logs it straight in.
func (s *Service) Register(ctx context.Context, username, email, password string, userAgent, ipAddress string) (*User, *Session, string, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, nil, "", err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, "", err
	}

	user, err := NewUser(username, email, hash)
	if err != nil {
		return nil, nil, "", err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, nil, "", oops.Code("AUTH_DUPLICATE_IDENTITY").
				With("username", username).
				Errorf("username or email already registered")
		}
		return nil, nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	session, token, err := s.sessions.Create(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, nil, "", err
	}

	s.logger.Info("user registered", "user_id", user.ID.String(), "username", user.Username)
	return user, session, token, nil
}

// Login verifies credentials and creates a session. The identifier matches a
// username or, failing that, an email. "No such user" and "wrong password"
// are indistinguishable to the caller, in content and in timing.
func (s *Service) Login(ctx context.Context, identifier, password string, userAgent, ipAddress string) (*User, *Session, string, error) {
	user, lookupErr := s.lookupByIdentifier(ctx, identifier)

	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, nil, "", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "lookup user").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify, even against the dummy hash, to keep timing flat.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, nil, "", invalidCredentials()
		}
		return nil, nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		if userExists {
			user.RecordFailure()
			_ = s.users.Update(ctx, user) //nolint:errcheck // best effort, the response stays uniform
			if st := CheckFailures(user.FailedAttempts, user.LockedUntil); st.Delay > 0 {
				s.logger.Warn("login failure",
					"user_id", user.ID.String(),
					"failures", user.FailedAttempts,
					"retry_delay", st.Delay)
			}
		}
		return nil, nil, "", invalidCredentials()
	}

	// Disabled accounts fail identically to bad credentials.
	if user.IsDisabled() {
		return nil, nil, "", invalidCredentials()
	}

	// Lockout is checked after verification so only callers holding the
	// correct password ever learn the account is locked.
	if user.IsLocked() {
		return nil, nil, "", oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", user.LockedUntil).
			Errorf("account is temporarily locked")
	}

	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		user.RecordSuccess()
		_ = s.users.Update(ctx, user) //nolint:errcheck // login succeeds regardless
	}

	session, token, err := s.sessions.Create(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, nil, "", err
	}

	s.logger.Info("user logged in", "user_id", user.ID.String())
	return user, session, token, nil
}

// Logout revokes the current session token. Always succeeds for unknown
// tokens.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// ProfileUpdate carries the optional fields of a profile patch. Nil means
// "leave unchanged"; a pointer to the empty string clears an email.
type ProfileUpdate struct {
	Username *string
	Email    *string
}

// UpdateProfile applies username/email changes with duplicate checks.
func (s *Service) UpdateProfile(ctx context.Context, user *User, upd ProfileUpdate) (*User, error) {
	changed := false

	if upd.Username != nil && *upd.Username != user.Username {
		if err := ValidateUsername(*upd.Username); err != nil {
			return nil, err
		}
		existing, err := s.users.GetByUsername(ctx, *upd.Username)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_PROFILE_FAILED").
				With("operation", "check username").
				Wrap(err)
		}
		if existing != nil && existing.ID.Compare(user.ID) != 0 {
			return nil, oops.Code("AUTH_DUPLICATE_IDENTITY").Errorf("username already taken")
		}
		user.Username = *upd.Username
		changed = true
	}

	if upd.Email != nil {
		newEmail := *upd.Email
		if newEmail == "" {
			if user.Email != nil {
				user.Email = nil
				changed = true
			}
		} else if user.Email == nil || *user.Email != newEmail {
			if err := ValidateEmail(newEmail); err != nil {
				return nil, err
			}
			existing, err := s.users.GetByEmail(ctx, newEmail)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, oops.Code("AUTH_PROFILE_FAILED").
					With("operation", "check email").
					Wrap(err)
			}
			if existing != nil && existing.ID.Compare(user.ID) != 0 {
				return nil, oops.Code("AUTH_DUPLICATE_IDENTITY").Errorf("email already registered")
			}
			user.Email = &newEmail
			changed = true
		}
	}

	if !changed {
		return user, nil
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the race between the pre-check and the write.
			return nil, oops.Code("AUTH_DUPLICATE_IDENTITY").Errorf("username or email already registered")
		}
		return nil, oops.Code("AUTH_PROFILE_FAILED").
			With("operation", "update user").
			Wrap(err)
	}

	return user, nil
}

// VerifyPassword checks a password against the user's stored hash without
// side effects. Callers combining a password change with other writes use it
// to reject the whole request before anything persists.
func (s *Service) VerifyPassword(user *User, password string) error {
	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").
			With("operation", "verify current password").
			Wrap(err)
	}
	if !valid {
		return oops.Code("AUTH_CURRENT_PASSWORD_INCORRECT").Errorf("current password is incorrect")
	}
	return nil
}

// ChangePassword verifies the current password, sets the new one, retires
// outstanding reset tokens, revokes every session, and hands back a fresh
// session so the caller stays signed in while all other devices are kicked.
func (s *Service) ChangePassword(ctx context.Context, user *User, currentPassword, newPassword string, userAgent, ipAddress string) (*Session, string, error) {
	if err := s.VerifyPassword(user, currentPassword); err != nil {
		return nil, "", err
	}

	if err := ValidatePassword(newPassword); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, "", err
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, "", oops.Code("AUTH_PASSWORD_CHANGE_FAILED").
			With("operation", "update password").
			Wrap(err)
	}
	user.PasswordHash = hash

	// Reset tokens issued before the change must not still work after it.
	if err := s.tokens.Retire(ctx, user.ID, PurposePasswordReset); err != nil {
		s.logger.Warn("failed to retire reset tokens after password change",
			"user_id", user.ID.String(), "error", err)
	}

	epoch, err := s.sessions.RevokeAll(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	user.SessionEpoch = epoch

	session, token, err := s.sessions.Create(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("password changed", "user_id", user.ID.String())
	return session, token, nil
}

// lookupByIdentifier resolves a username-or-email identifier.
func (s *Service) lookupByIdentifier(ctx context.Context, identifier string) (*User, error) {
	user, err := s.users.GetByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, ErrNotFound) && LooksLikeEmail(identifier) {
		return s.users.GetByEmail(ctx, identifier)
	}
	return nil, err
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
}
