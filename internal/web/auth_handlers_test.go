// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web_test

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/web"
)

func TestRegisterLoginLogoutFlow(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "sw0rdf1sh!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	// The response sets the session cookie and echoes the token for
	// non-browser clients.
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == web.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "registration should set the session cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, cookie.Value, token)

	// The session works as a bearer token.
	rec = f.do(t, http.MethodGet, "/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["authenticated"])

	// Logout kills it.
	rec = f.do(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])

	// Fresh login with the same credentials.
	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username_or_email": "alice@example.com",
		"password":          "sw0rdf1sh!",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
}

func TestRegister_Validation(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]any{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "alice",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AUTH_WEAK_PASSWORD", errorCode(t, rec))

	f.register(t, "alice", "alice@example.com", "sw0rdf1sh!")
	rec = f.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "ALICE",
		"password": "sw0rdf1sh!",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AUTH_DUPLICATE_IDENTITY", errorCode(t, rec))
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newWebFixture(t)
	f.register(t, "alice", "", "sw0rdf1sh!")

	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username_or_email": "alice",
		"password":          "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_INVALID_CREDENTIALS", errorCode(t, rec))

	// Unknown accounts look identical to wrong passwords.
	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username_or_email": "nobody",
		"password":          "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_INVALID_CREDENTIALS", errorCode(t, rec))
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	f := newWebFixture(t)
	f.register(t, "alice", "", "sw0rdf1sh!")

	for range auth.LockoutThreshold {
		rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]any{
			"username_or_email": "alice",
			"password":          "wrongpassword",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH_INVALID_CREDENTIALS", errorCode(t, rec))
	}

	// The lockout only ever surfaces to callers holding the right password.
	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username_or_email": "alice",
		"password":          "sw0rdf1sh!",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "AUTH_ACCOUNT_LOCKED", errorCode(t, rec))
}

func TestRequireAuth(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodGet, "/account/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_INVALID", errorCode(t, rec))

	rec = f.do(t, http.MethodGet, "/account/profile", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPatchProfile_PasswordChangeSwapsSession(t *testing.T) {
	f := newWebFixture(t)
	oldToken := f.register(t, "bob", "bob@example.com", "oldpassword")

	rec := f.do(t, http.MethodPatch, "/account/profile", oldToken, map[string]any{
		"password": map[string]any{"current": "oldpassword", "new": "newpassword"},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	newToken, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, newToken, "password change should hand back a fresh session")

	// The old session no longer authenticates; the new one does.
	rec = f.do(t, http.MethodGet, "/account/profile", oldToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodGet, "/account/profile", newToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPatchProfile_WrongCurrentPassword(t *testing.T) {
	f := newWebFixture(t)
	token := f.register(t, "bob", "", "oldpassword")

	rec := f.do(t, http.MethodPatch, "/account/profile", token, map[string]any{
		"password": map[string]any{"current": "nope-nope", "new": "newpassword"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH_CURRENT_PASSWORD_INCORRECT", errorCode(t, rec))

	// The session survives the failed attempt.
	rec = f.do(t, http.MethodGet, "/account/profile", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPatchProfile_RejectedPasswordLeavesProfileUntouched(t *testing.T) {
	f := newWebFixture(t)
	token := f.register(t, "bob", "bob@example.com", "oldpassword")

	// Wrong current password rejects the whole patch, including the
	// username change riding along with it.
	rec := f.do(t, http.MethodPatch, "/account/profile", token, map[string]any{
		"username": "robert",
		"password": map[string]any{"current": "nope-nope", "new": "newpassword"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH_CURRENT_PASSWORD_INCORRECT", errorCode(t, rec))

	rec = f.do(t, http.MethodGet, "/account/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user, _ := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "bob", user["username"])

	// Same for a weak replacement password with the correct current one.
	rec = f.do(t, http.MethodPatch, "/account/profile", token, map[string]any{
		"username": "robert",
		"password": map[string]any{"current": "oldpassword", "new": "short"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AUTH_WEAK_PASSWORD", errorCode(t, rec))

	rec = f.do(t, http.MethodGet, "/account/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user, _ = decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "bob", user["username"])
}

var resetTokenRe = regexp.MustCompile(`token=([0-9a-f]{64})`)

func TestPasswordResetFlow(t *testing.T) {
	f := newWebFixture(t)
	f.register(t, "alice", "alice@example.com", "oldpassword")

	// Forgot-password answers 200 whether or not the account exists.
	rec := f.do(t, http.MethodPost, "/auth/password/forgot", "", map[string]any{
		"identifier": "nobody@example.com",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/password/forgot", "", map[string]any{
		"identifier": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	matches := resetTokenRe.FindStringSubmatch(f.sink.lastBody(t))
	require.Len(t, matches, 2, "notification should carry the reset link")
	resetToken := matches[1]

	// Mismatched confirmation is rejected before touching the token.
	rec = f.do(t, http.MethodPost, "/auth/password/reset", "", map[string]any{
		"token":            resetToken,
		"new_password":     "newpassword",
		"confirm_password": "different",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/password/reset", "", map[string]any{
		"token":            resetToken,
		"new_password":     "newpassword",
		"confirm_password": "newpassword",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	// Replaying the token is Gone.
	rec = f.do(t, http.MethodPost, "/auth/password/reset", "", map[string]any{
		"token":            resetToken,
		"new_password":     "thirdpassword",
		"confirm_password": "thirdpassword",
	})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "TOKEN_ALREADY_USED", errorCode(t, rec))

	// And the new password logs in.
	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username_or_email": "alice",
		"password":          "newpassword",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
