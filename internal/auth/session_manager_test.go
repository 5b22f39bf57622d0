// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/auth/memory"
	"github.com/parleyhq/parley/pkg/errutil"
)

func newTestUser(t *testing.T, users auth.UserRepository, username string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(username, username+"@example.com", "$argon2id$fake")
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func newSessionManager(t *testing.T, users auth.UserRepository, sessions auth.SessionRepository) *auth.SessionManager {
	t.Helper()
	m, err := auth.NewSessionManager(users, sessions, slog.Default())
	require.NoError(t, err)
	return m
}

func TestSessionManager_CreateAndValidate(t *testing.T) {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	manager := newSessionManager(t, users, sessions)
	user := newTestUser(t, users, "alice")

	session, token, err := manager.Create(context.Background(), user, "agent", "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, session.UserID)

	gotUser, gotSession, err := manager.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, gotUser.ID)
	assert.Equal(t, session.ID, gotSession.ID)
}

func TestSessionManager_Validate_UnknownToken(t *testing.T) {
	manager := newSessionManager(t, memory.NewUserRepository(), memory.NewSessionRepository())

	_, _, err := manager.Validate(context.Background(), "no-such-token")
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")

	_, _, err = manager.Validate(context.Background(), "")
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")
}

func TestSessionManager_Revoke_Idempotent(t *testing.T) {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	manager := newSessionManager(t, users, sessions)
	user := newTestUser(t, users, "alice")

	_, token, err := manager.Create(context.Background(), user, "", "")
	require.NoError(t, err)

	require.NoError(t, manager.Revoke(context.Background(), token))

	_, _, err = manager.Validate(context.Background(), token)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")

	// Second revocation of the same token is a quiet no-op.
	require.NoError(t, manager.Revoke(context.Background(), token))
	require.NoError(t, manager.Revoke(context.Background(), "never-existed"))
}

func TestSessionManager_RevokeAll_InvalidatesEverySession(t *testing.T) {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	manager := newSessionManager(t, users, sessions)
	user := newTestUser(t, users, "alice")

	_, first, err := manager.Create(context.Background(), user, "laptop", "")
	require.NoError(t, err)
	_, second, err := manager.Create(context.Background(), user, "phone", "")
	require.NoError(t, err)

	epoch, err := manager.RevokeAll(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), epoch)

	for _, token := range []string{first, second} {
		_, _, err := manager.Validate(context.Background(), token)
		errutil.AssertErrorCode(t, err, "SESSION_INVALID")
	}
}

func TestSessionManager_RevokeAll_EpochOrphansSurvivingRows(t *testing.T) {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	manager := newSessionManager(t, users, sessions)
	user := newTestUser(t, users, "alice")

	_, token, err := manager.Create(context.Background(), user, "", "")
	require.NoError(t, err)

	// Bump the epoch without sweeping rows, as a crashed sweep would leave it.
	_, err = users.BumpSessionEpoch(context.Background(), user.ID)
	require.NoError(t, err)

	// The session row still exists but its stamp is stale.
	_, _, err = manager.Validate(context.Background(), token)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")
}

func TestSessionManager_Validate_DisabledUser(t *testing.T) {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	manager := newSessionManager(t, users, sessions)
	user := newTestUser(t, users, "alice")

	_, token, err := manager.Create(context.Background(), user, "", "")
	require.NoError(t, err)

	require.NoError(t, users.Disable(context.Background(), user.ID, time.Now()))

	_, _, err = manager.Validate(context.Background(), token)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")
}

func TestSessionManager_Validate_ExpiredSession(t *testing.T) {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	manager := newSessionManager(t, users, sessions)
	user := newTestUser(t, users, "alice")

	session, token, err := manager.Create(context.Background(), user, "", "")
	require.NoError(t, err)

	// Force the sliding window into the past.
	require.NoError(t, sessions.Extend(context.Background(), session.ID,
		time.Now().Add(-2*auth.SessionIdleTimeout), time.Now().Add(-time.Hour)))

	_, _, err = manager.Validate(context.Background(), token)
	errutil.AssertErrorCode(t, err, "SESSION_EXPIRED")
}
