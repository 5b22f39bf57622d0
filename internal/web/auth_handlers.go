// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/auth"
)

// userResponse is the public shape of an account.
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email"`
	IsStaff   bool      `json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		IsStaff:   u.IsStaff,
		CreatedAt: u.CreatedAt,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

type resetPasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// handleSessionInfo reports whether the request carries a valid session.
func (s *Server) handleSessionInfo(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          toUserResponse(user),
	})
}

// handleRegister creates an account and signs it straight in.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user, session, token, err := s.deps.Auth.Register(
		c.Request.Context(),
		req.Username, req.Email, req.Password,
		c.Request.UserAgent(), c.ClientIP(),
	)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
		}
		s.writeError(c, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RegistrationsTotal.WithLabelValues("success").Inc()
		s.deps.Metrics.SessionsActive.Inc()
	}

	s.setSessionCookie(c, token, session.ExpiresAt)
	c.JSON(http.StatusCreated, gin.H{
		"user":  toUserResponse(user),
		"token": token,
	})
}

// handleLogin verifies credentials and opens a session.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user, session, token, err := s.deps.Auth.Login(
		c.Request.Context(),
		req.UsernameOrEmail, req.Password,
		c.Request.UserAgent(), c.ClientIP(),
	)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.LoginsTotal.WithLabelValues("failure").Inc()
		}
		s.writeError(c, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.LoginsTotal.WithLabelValues("success").Inc()
		s.deps.Metrics.SessionsActive.Inc()
	}

	s.setSessionCookie(c, token, session.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{
		"user":  toUserResponse(user),
		"token": token,
	})
}

// handleLogout revokes the current session. Always succeeds.
func (s *Server) handleLogout(c *gin.Context) {
	if err := s.deps.Auth.Logout(c.Request.Context(), currentToken(c)); err != nil {
		s.writeError(c, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionsActive.Dec()
	}

	s.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleBecomeAdmin files an elevation request for the current user.
func (s *Server) handleBecomeAdmin(c *gin.Context) {
	req, err := s.deps.Elevation.Request(c.Request.Context(), currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"request_id": req.ID.String(),
		"status":     string(req.Status),
	})
}

// handleElevationDecision redeems an elevation token with the approver's
// decision carried in the query string.
func (s *Server) handleElevationDecision(c *gin.Context) {
	decision, err := auth.ParseElevationDecision(c.Query("decision"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	status, err := s.deps.Elevation.Decide(c.Request.Context(), c.Param("token"), decision)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.TokenRedemptionsTotal.
				WithLabelValues(string(auth.PurposeAdminElevation), "rejected").Inc()
		}
		s.writeError(c, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.TokenRedemptionsTotal.
			WithLabelValues(string(auth.PurposeAdminElevation), "success").Inc()
	}

	c.JSON(http.StatusOK, gin.H{"status": string(status)})
}

// handleForgotPassword issues a reset token when the identifier resolves.
// The response never reveals whether it did.
func (s *Server) handleForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if err := s.deps.Reset.RequestReset(c.Request.Context(), req.Identifier); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "if the account exists, a reset link has been sent",
	})
}

// handleResetPassword redeems a reset token and installs the new password.
func (s *Server) handleResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if req.NewPassword != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_REQUEST", "message": "passwords do not match"},
		})
		return
	}

	if err := s.deps.Reset.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.TokenRedemptionsTotal.
				WithLabelValues(string(auth.PurposePasswordReset), "rejected").Inc()
		}
		s.writeError(c, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.TokenRedemptionsTotal.
			WithLabelValues(string(auth.PurposePasswordReset), "success").Inc()
	}

	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}
