// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package chat holds the conversation surface the identity core collaborates
// with: enough entity and repository to drive authorization decisions and the
// staff overview.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// MaxTitleLength bounds conversation titles.
const MaxTitleLength = 200

// Conversation is a chat room or thread. OwnerID is nil for conversations
// whose owner account was disabled and detached; those stay readable to staff.
type Conversation struct {
	ID         ulid.ULID
	OwnerID    *ulid.ULID
	Title      string
	IsPrivate  bool
	Archived   bool
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewConversation creates a validated Conversation.
func NewConversation(ownerID ulid.ULID, title string, private bool) (*Conversation, error) {
	if ownerID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("CHAT_INVALID_OWNER").Errorf("owner ID cannot be zero")
	}
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}

	now := time.Now()
	owner := ownerID
	return &Conversation{
		ID:        ulid.Make(),
		OwnerID:   &owner,
		Title:     strings.TrimSpace(title),
		IsPrivate: private,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsOwnedBy reports whether the user owns the conversation.
func (c *Conversation) IsOwnedBy(userID ulid.ULID) bool {
	return c.OwnerID != nil && c.OwnerID.Compare(userID) == 0
}

// Archive marks the conversation archived at the given time.
func (c *Conversation) Archive(at time.Time) {
	if c.Archived {
		return
	}
	c.Archived = true
	c.ArchivedAt = &at
	c.UpdatedAt = at
}

// Unarchive clears the archived state.
func (c *Conversation) Unarchive(at time.Time) {
	if !c.Archived {
		return
	}
	c.Archived = false
	c.ArchivedAt = nil
	c.UpdatedAt = at
}

// ValidateTitle validates a conversation title.
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return oops.Code("CHAT_INVALID_TITLE").Errorf("title cannot be empty")
	}
	if len(trimmed) > MaxTitleLength {
		return oops.Code("CHAT_INVALID_TITLE").
			With("max", MaxTitleLength).
			Errorf("title must be at most %d characters", MaxTitleLength)
	}
	return nil
}

// ConversationRepository manages conversation persistence.
type ConversationRepository interface {
	// Create stores a new conversation.
	Create(ctx context.Context, conv *Conversation) error

	// GetByID retrieves a conversation by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Conversation, error)

	// List returns all conversations, newest first.
	List(ctx context.Context) ([]*Conversation, error)

	// Update updates title, privacy, and archive state.
	Update(ctx context.Context, conv *Conversation) error

	// DetachOwner clears ownership on every conversation the user owns.
	DetachOwner(ctx context.Context, ownerID ulid.ULID) error

	// Count returns the total number of conversations.
	Count(ctx context.Context) (int64, error)
}
