// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package access makes conversation and admin authorization decisions. Every
// function is pure: the same user and conversation always produce the same
// answer, with no storage behind it.
package access

import (
	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/chat"
)

// CanRead reports whether the user may view the conversation. Owners and
// staff always can; any authenticated user can read a non-private one.
// A nil user is unauthenticated and can read nothing.
func CanRead(user *auth.User, conv *chat.Conversation) bool {
	if user == nil || conv == nil {
		return false
	}
	if user.IsStaff || conv.IsOwnedBy(user.ID) {
		return true
	}
	return !conv.IsPrivate
}

// CanWrite reports whether the user may modify the conversation. Only the
// owner and staff can.
func CanWrite(user *auth.User, conv *chat.Conversation) bool {
	if user == nil || conv == nil {
		return false
	}
	return user.IsStaff || conv.IsOwnedBy(user.ID)
}

// CanAdminister reports whether the user may use the staff surfaces.
func CanAdminister(user *auth.User) bool {
	return user != nil && user.IsStaff
}

// Filter returns the subset of conversations the user may read, preserving
// order.
func Filter(user *auth.User, convs []*chat.Conversation) []*chat.Conversation {
	visible := make([]*chat.Conversation, 0, len(convs))
	for _, conv := range convs {
		if CanRead(user, conv) {
			visible = append(visible, conv)
		}
	}
	return visible
}
