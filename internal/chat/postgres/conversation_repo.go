// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package postgres implements the conversation repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleyhq/parley/internal/chat"
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConversationRepository implements chat.ConversationRepository using
// PostgreSQL.
type ConversationRepository struct {
	db DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `id, owner_id, title, is_private, archived, archived_at, created_at, updated_at`

// Create stores a new conversation.
func (r *ConversationRepository) Create(ctx context.Context, conv *chat.Conversation) error {
	var ownerID *string
	if conv.OwnerID != nil {
		s := conv.OwnerID.String()
		ownerID = &s
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO conversations (id, owner_id, title, is_private, archived, archived_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		conv.ID.String(),
		ownerID,
		conv.Title,
		conv.IsPrivate,
		conv.Archived,
		conv.ArchivedAt,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return oops.Code("CONVERSATION_CREATE_FAILED").
			With("operation", "insert conversation").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a conversation by ID.
func (r *ConversationRepository) GetByID(ctx context.Context, id ulid.ULID) (*chat.Conversation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1
	`, id.String())

	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CONVERSATION_NOT_FOUND").
			With("id", id.String()).
			Wrap(chat.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CONVERSATION_GET_FAILED").
			With("operation", "get conversation by id").
			With("id", id.String()).
			Wrap(err)
	}
	return conv, nil
}

// List returns all conversations, newest first.
func (r *ConversationRepository) List(ctx context.Context) ([]*chat.Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, oops.Code("CONVERSATION_LIST_FAILED").
			With("operation", "list conversations").
			Wrap(err)
	}
	defer rows.Close()

	var convs []*chat.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, oops.Code("CONVERSATION_SCAN_FAILED").
				With("operation", "scan conversation row").
				Wrap(err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("CONVERSATION_ROWS_ERROR").
			With("operation", "iterate conversation rows").
			Wrap(err)
	}

	return convs, nil
}

// Update updates title, privacy, and archive state.
func (r *ConversationRepository) Update(ctx context.Context, conv *chat.Conversation) error {
	result, err := r.db.Exec(ctx, `
		UPDATE conversations SET
			title = $2,
			is_private = $3,
			archived = $4,
			archived_at = $5,
			updated_at = $6
		WHERE id = $1
	`,
		conv.ID.String(),
		conv.Title,
		conv.IsPrivate,
		conv.Archived,
		conv.ArchivedAt,
		time.Now(),
	)
	if err != nil {
		return oops.Code("CONVERSATION_UPDATE_FAILED").
			With("operation", "update conversation").
			With("id", conv.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("CONVERSATION_NOT_FOUND").
			With("id", conv.ID.String()).
			Wrap(chat.ErrNotFound)
	}
	return nil
}

// DetachOwner clears ownership on every conversation the user owns.
func (r *ConversationRepository) DetachOwner(ctx context.Context, ownerID ulid.ULID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations SET owner_id = NULL, updated_at = $2
		WHERE owner_id = $1
	`, ownerID.String(), time.Now())
	if err != nil {
		return oops.Code("CONVERSATION_DETACH_FAILED").
			With("operation", "detach owner").
			With("owner_id", ownerID.String()).
			Wrap(err)
	}
	return nil
}

// Count returns the total number of conversations.
func (r *ConversationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, oops.Code("CONVERSATION_COUNT_FAILED").Wrap(err)
	}
	return n, nil
}

// scanConversation scans a single row into a Conversation.
// Callers are responsible for handling pgx.ErrNoRows.
func scanConversation(row pgx.Row) (*chat.Conversation, error) {
	var (
		idStr      string
		ownerIDStr *string
		title      string
		isPrivate  bool
		archived   bool
		archivedAt *time.Time
		createdAt  time.Time
		updatedAt  time.Time
	)

	err := row.Scan(&idStr, &ownerIDStr, &title, &isPrivate, &archived, &archivedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("CONVERSATION_SCAN_FAILED").
			With("operation", "scan conversation").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("CONVERSATION_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}

	var ownerID *ulid.ULID
	if ownerIDStr != nil {
		parsed, err := ulid.Parse(*ownerIDStr)
		if err != nil {
			return nil, oops.Code("CONVERSATION_INVALID_OWNER_ID").
				With("owner_id", *ownerIDStr).
				Wrap(err)
		}
		ownerID = &parsed
	}

	return &chat.Conversation{
		ID:         id,
		OwnerID:    ownerID,
		Title:      title,
		IsPrivate:  isPrivate,
		Archived:   archived,
		ArchivedAt: archivedAt,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// Compile-time interface check.
var _ chat.ConversationRepository = (*ConversationRepository)(nil)
