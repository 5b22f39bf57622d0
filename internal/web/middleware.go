// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/auth"
)

// Context keys set by the session middleware.
const (
	ctxKeyUser    = "parley.user"
	ctxKeySession = "parley.session"
	ctxKeyToken   = "parley.token"
)

// extractToken pulls the session token from the cookie or the Authorization
// header. Cookie wins when both are present.
func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return strings.TrimSpace(token)
	}
	return ""
}

// resolveSession validates the request's session token, if any, and stashes
// the user and session in the request context. An invalid token is treated
// the same as no token; handlers that need authentication use requireAuth.
func (s *Server) resolveSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		user, session, err := s.deps.Sessions.Validate(c.Request.Context(), token)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ctxKeyUser, user)
		c.Set(ctxKeySession, session)
		c.Set(ctxKeyToken, token)
		c.Next()
	}
}

// requireAuth aborts with 401 when no valid session was resolved.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "SESSION_INVALID", "message": "authentication required"},
			})
			return
		}
		c.Next()
	}
}

// requireStaff aborts with 403 for authenticated non-staff users. Runs after
// requireAuth.
func (s *Server) requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "ACCESS_DENIED", "message": "staff access required"},
			})
			return
		}
		c.Next()
	}
}

// requestMetrics counts handled requests by method, route, and status.
func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if s.deps.Metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}

// currentUser returns the authenticated user, or nil.
func currentUser(c *gin.Context) *auth.User {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return nil
	}
	user, _ := v.(*auth.User)
	return user
}

// currentSession returns the validated session, or nil.
func currentSession(c *gin.Context) *auth.Session {
	v, ok := c.Get(ctxKeySession)
	if !ok {
		return nil
	}
	session, _ := v.(*auth.Session)
	return session
}

// currentToken returns the plaintext session token, or "".
func currentToken(c *gin.Context) string {
	v, ok := c.Get(ctxKeyToken)
	if !ok {
		return ""
	}
	token, _ := v.(string)
	return token
}
