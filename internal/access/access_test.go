// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package access_test

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/internal/access"
	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/chat"
)

func conv(owner *ulid.ULID, private bool) *chat.Conversation {
	return &chat.Conversation{
		ID:        ulid.Make(),
		OwnerID:   owner,
		Title:     "test",
		IsPrivate: private,
	}
}

func TestCanRead(t *testing.T) {
	ownerID := ulid.Make()
	owner := &auth.User{ID: ownerID}
	stranger := &auth.User{ID: ulid.Make()}
	staff := &auth.User{ID: ulid.Make(), IsStaff: true}

	tests := []struct {
		name string
		user *auth.User
		conv *chat.Conversation
		want bool
	}{
		{name: "unauthenticated", user: nil, conv: conv(&ownerID, false), want: false},
		{name: "owner reads own private", user: owner, conv: conv(&ownerID, true), want: true},
		{name: "stranger reads public", user: stranger, conv: conv(&ownerID, false), want: true},
		{name: "stranger blocked from private", user: stranger, conv: conv(&ownerID, true), want: false},
		{name: "staff reads private", user: staff, conv: conv(&ownerID, true), want: true},
		{name: "orphaned public readable", user: stranger, conv: conv(nil, false), want: true},
		{name: "orphaned private staff only", user: stranger, conv: conv(nil, true), want: false},
		{name: "nil conversation", user: owner, conv: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, access.CanRead(tt.user, tt.conv))
		})
	}
}

func TestCanWrite(t *testing.T) {
	ownerID := ulid.Make()
	owner := &auth.User{ID: ownerID}
	stranger := &auth.User{ID: ulid.Make()}
	staff := &auth.User{ID: ulid.Make(), IsStaff: true}

	public := conv(&ownerID, false)

	assert.True(t, access.CanWrite(owner, public))
	assert.True(t, access.CanWrite(staff, public))
	assert.False(t, access.CanWrite(stranger, public), "readable is not writable")
	assert.False(t, access.CanWrite(nil, public))
}

func TestCanAdminister(t *testing.T) {
	assert.False(t, access.CanAdminister(nil))
	assert.False(t, access.CanAdminister(&auth.User{ID: ulid.Make()}))
	assert.True(t, access.CanAdminister(&auth.User{ID: ulid.Make(), IsStaff: true}))
}

func TestFilter(t *testing.T) {
	ownerID := ulid.Make()
	owner := &auth.User{ID: ownerID}
	stranger := &auth.User{ID: ulid.Make()}

	convs := []*chat.Conversation{
		conv(&ownerID, false),
		conv(&ownerID, true),
		conv(nil, false),
	}

	assert.Len(t, access.Filter(owner, convs), 3)
	assert.Len(t, access.Filter(stranger, convs), 2)
	assert.Empty(t, access.Filter(nil, convs))
}
