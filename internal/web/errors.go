// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/parleyhq/parley/pkg/errutil"
)

// statusByCode maps service error codes to HTTP statuses. Codes absent from
// the map are storage or programming faults and render as 500 with a generic
// body so internals never leak.
var statusByCode = map[string]int{
	// 400: the request itself is malformed or violates a validation rule.
	"AUTH_WEAK_PASSWORD":          http.StatusBadRequest,
	"AUTH_INVALID_USERNAME":       http.StatusBadRequest,
	"AUTH_INVALID_EMAIL":          http.StatusBadRequest,
	"AUTH_ALREADY_STAFF":          http.StatusBadRequest,
	"ELEVATION_INVALID_DECISION":  http.StatusBadRequest,
	"CHAT_INVALID_TITLE":          http.StatusBadRequest,
	"CHAT_INVALID_OWNER":          http.StatusBadRequest,

	// 401: not authenticated, or credentials that must stay uniform.
	"AUTH_INVALID_CREDENTIALS": http.StatusUnauthorized,
	"SESSION_INVALID":          http.StatusUnauthorized,
	"SESSION_EXPIRED":          http.StatusUnauthorized,

	// 403: authenticated but not allowed.
	"AUTH_CURRENT_PASSWORD_INCORRECT": http.StatusForbidden,
	"ACCESS_DENIED":                   http.StatusForbidden,

	// 429: correct credentials, but the account is throttled.
	"AUTH_ACCOUNT_LOCKED": http.StatusTooManyRequests,

	// 404: the resource does not exist (or the caller may not know it does).
	"USER_NOT_FOUND":         http.StatusNotFound,
	"CONVERSATION_NOT_FOUND": http.StatusNotFound,
	"ELEVATION_NOT_FOUND":    http.StatusNotFound,

	// 409: state conflicts.
	"AUTH_DUPLICATE_IDENTITY":  http.StatusConflict,
	"USER_DUPLICATE":           http.StatusConflict,
	"ELEVATION_PENDING_EXISTS": http.StatusConflict,

	// 410: single-use tokens that are gone, whatever the reason. Collapsing
	// not-found/expired/consumed keeps token probing uninformative.
	"TOKEN_NOT_FOUND":    http.StatusGone,
	"TOKEN_EXPIRED":      http.StatusGone,
	"TOKEN_ALREADY_USED": http.StatusGone,
}

// writeError renders a service error as JSON. Unmapped errors are logged at
// error level and rendered as an opaque 500.
func (s *Server) writeError(c *gin.Context, err error) {
	code := ""
	message := "internal error"

	if oopsErr, ok := oops.AsOops(err); ok {
		if c, ok := oopsErr.Code().(string); ok {
			code = c
		}
	}

	status, known := statusByCode[code]
	if !known {
		errutil.LogError(s.deps.Logger, "request failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL", "message": message},
		})
		return
	}

	// Mapped errors are client-caused; their messages are written for users.
	c.JSON(status, gin.H{
		"error": gin.H{"code": code, "message": err.Error()},
	})
}

// writeBindError renders a request-body binding failure.
func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{"code": "INVALID_REQUEST", "message": err.Error()},
	})
}
