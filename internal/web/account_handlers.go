// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/auth"
)

type patchProfileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`

	// Password, when present, requires the current password and swaps the
	// session: the caller keeps this one, every other device is kicked.
	Password *passwordChangeBlock `json:"password"`
}

type passwordChangeBlock struct {
	Current string `json:"current" binding:"required"`
	New     string `json:"new" binding:"required"`
}

// handleGetProfile returns the current user's profile.
func (s *Server) handleGetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(currentUser(c))})
}

// handlePatchProfile applies username/email changes and, optionally, a
// password change.
func (s *Server) handlePatchProfile(c *gin.Context) {
	var req patchProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user := currentUser(c)

	// Check the password block up front so a rejected change leaves no
	// partial profile update behind.
	if req.Password != nil {
		if err := s.deps.Auth.VerifyPassword(user, req.Password.Current); err != nil {
			s.writeError(c, err)
			return
		}
		if err := auth.ValidatePassword(req.Password.New); err != nil {
			s.writeError(c, err)
			return
		}
	}

	user, err := s.deps.Auth.UpdateProfile(c.Request.Context(), user, auth.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{"user": toUserResponse(user)}

	if req.Password != nil {
		session, token, err := s.deps.Auth.ChangePassword(
			c.Request.Context(),
			user, req.Password.Current, req.Password.New,
			c.Request.UserAgent(), c.ClientIP(),
		)
		if err != nil {
			s.writeError(c, err)
			return
		}

		s.setSessionCookie(c, token, session.ExpiresAt)
		resp["token"] = token
	}

	c.JSON(http.StatusOK, resp)
}
