// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint (username, email) is hit.
var ErrDuplicate = errors.New("duplicate identity")

// Token redemption sentinels. Repositories return these from Redeem/Decide so
// services can attach error codes. The HTTP layer collapses all three into a
// single invalid-or-expired response.
var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("token already used")
)
