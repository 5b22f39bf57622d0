// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package chat_test

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/pkg/errutil"
)

func TestNewConversation(t *testing.T) {
	ownerID := ulid.Make()

	conv, err := chat.NewConversation(ownerID, "  General  ", true)
	require.NoError(t, err)
	assert.Equal(t, "General", conv.Title, "title should be trimmed")
	assert.True(t, conv.IsPrivate)
	require.NotNil(t, conv.OwnerID)
	assert.Equal(t, ownerID, *conv.OwnerID)
	assert.False(t, conv.Archived)

	_, err = chat.NewConversation(ulid.ULID{}, "General", false)
	errutil.AssertErrorCode(t, err, "CHAT_INVALID_OWNER")

	_, err = chat.NewConversation(ownerID, "   ", false)
	errutil.AssertErrorCode(t, err, "CHAT_INVALID_TITLE")
}

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{name: "plain", title: "General"},
		{name: "max length", title: strings.Repeat("a", chat.MaxTitleLength)},
		{name: "empty", title: "", wantErr: true},
		{name: "whitespace only", title: " \t ", wantErr: true},
		{name: "too long", title: strings.Repeat("a", chat.MaxTitleLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chat.ValidateTitle(tt.title)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "CHAT_INVALID_TITLE")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConversation_IsOwnedBy(t *testing.T) {
	ownerID := ulid.Make()
	conv, err := chat.NewConversation(ownerID, "General", false)
	require.NoError(t, err)

	assert.True(t, conv.IsOwnedBy(ownerID))
	assert.False(t, conv.IsOwnedBy(ulid.Make()))

	conv.OwnerID = nil
	assert.False(t, conv.IsOwnedBy(ownerID), "detached conversations have no owner")
}

func TestConversation_ArchiveUnarchive(t *testing.T) {
	conv, err := chat.NewConversation(ulid.Make(), "General", false)
	require.NoError(t, err)

	at := time.Now().Add(time.Hour)
	conv.Archive(at)
	assert.True(t, conv.Archived)
	require.NotNil(t, conv.ArchivedAt)
	assert.Equal(t, at, *conv.ArchivedAt)
	assert.Equal(t, at, conv.UpdatedAt)

	// Re-archiving is a no-op and keeps the original timestamp.
	later := at.Add(time.Hour)
	conv.Archive(later)
	assert.Equal(t, at, *conv.ArchivedAt)

	conv.Unarchive(later)
	assert.False(t, conv.Archived)
	assert.Nil(t, conv.ArchivedAt)
	assert.Equal(t, later, conv.UpdatedAt)

	// Unarchiving an active conversation does nothing.
	conv.Unarchive(later.Add(time.Hour))
	assert.Equal(t, later, conv.UpdatedAt)
}
