// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/auth"
)

type elevationRequestResponse struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at"`
}

func toElevationResponse(r *auth.ElevationRequest) elevationRequestResponse {
	return elevationRequestResponse{
		ID:        r.ID.String(),
		UserID:    r.UserID.String(),
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		DecidedAt: r.DecidedAt,
	}
}

// handleAdminOverview returns the staff dashboard counts.
func (s *Server) handleAdminOverview(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := s.deps.Users.Count(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	conversations, err := s.deps.Conversations.Count(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	pending, err := s.deps.Elevation.CountPending(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":             users,
		"conversations":     conversations,
		"pending_elevation": pending,
	})
}

// handleListElevationRequests lists all elevation requests, newest first.
func (s *Server) handleListElevationRequests(c *gin.Context) {
	reqs, err := s.deps.Elevation.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]elevationRequestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toElevationResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}
