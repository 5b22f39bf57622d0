// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package memory implements the conversation repository in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleyhq/parley/internal/chat"
)

// ConversationRepository is an in-memory chat.ConversationRepository.
type ConversationRepository struct {
	mu    sync.RWMutex
	convs map[ulid.ULID]*chat.Conversation
}

// NewConversationRepository creates an empty in-memory repository.
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{convs: make(map[ulid.ULID]*chat.Conversation)}
}

// Create stores a new conversation.
func (r *ConversationRepository) Create(_ context.Context, conv *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *conv
	r.convs[conv.ID] = &clone
	return nil
}

// GetByID retrieves a conversation by ID.
func (r *ConversationRepository) GetByID(_ context.Context, id ulid.ULID) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.convs[id]
	if !ok {
		return nil, oops.Code("CONVERSATION_NOT_FOUND").
			With("id", id.String()).
			Wrap(chat.ErrNotFound)
	}
	clone := *conv
	return &clone, nil
}

// List returns all conversations, newest first.
func (r *ConversationRepository) List(_ context.Context) ([]*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	convs := make([]*chat.Conversation, 0, len(r.convs))
	for _, conv := range r.convs {
		clone := *conv
		convs = append(convs, &clone)
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	return convs, nil
}

// Update updates title, privacy, and archive state.
func (r *ConversationRepository) Update(_ context.Context, conv *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.convs[conv.ID]
	if !ok {
		return oops.Code("CONVERSATION_NOT_FOUND").
			With("id", conv.ID.String()).
			Wrap(chat.ErrNotFound)
	}
	existing.Title = conv.Title
	existing.IsPrivate = conv.IsPrivate
	existing.Archived = conv.Archived
	existing.ArchivedAt = conv.ArchivedAt
	existing.UpdatedAt = time.Now()
	return nil
}

// DetachOwner clears ownership on every conversation the user owns.
func (r *ConversationRepository) DetachOwner(_ context.Context, ownerID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, conv := range r.convs {
		if conv.OwnerID != nil && conv.OwnerID.Compare(ownerID) == 0 {
			conv.OwnerID = nil
			conv.UpdatedAt = now
		}
	}
	return nil
}

// Count returns the total number of conversations.
func (r *ConversationRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.convs)), nil
}

// Compile-time interface check.
var _ chat.ConversationRepository = (*ConversationRepository)(nil)
