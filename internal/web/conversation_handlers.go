// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/parleyhq/parley/internal/access"
	"github.com/parleyhq/parley/internal/chat"
)

type conversationResponse struct {
	ID        string    `json:"id"`
	OwnerID   *string   `json:"owner_id"`
	Title     string    `json:"title"`
	IsPrivate bool      `json:"is_private"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

func toConversationResponse(conv *chat.Conversation) conversationResponse {
	var ownerID *string
	if conv.OwnerID != nil {
		s := conv.OwnerID.String()
		ownerID = &s
	}
	return conversationResponse{
		ID:        conv.ID.String(),
		OwnerID:   ownerID,
		Title:     conv.Title,
		IsPrivate: conv.IsPrivate,
		Archived:  conv.Archived,
		CreatedAt: conv.CreatedAt,
	}
}

type createConversationRequest struct {
	Title     string `json:"title" binding:"required"`
	IsPrivate bool   `json:"is_private"`
}

type patchConversationRequest struct {
	Title     *string `json:"title"`
	IsPrivate *bool   `json:"is_private"`
	Archived  *bool   `json:"archived"`
}

// handleListConversations lists the conversations the user may read.
func (s *Server) handleListConversations(c *gin.Context) {
	convs, err := s.deps.Conversations.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	visible := access.Filter(currentUser(c), convs)
	out := make([]conversationResponse, 0, len(visible))
	for _, conv := range visible {
		out = append(out, toConversationResponse(conv))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// handleCreateConversation creates a conversation owned by the caller.
func (s *Server) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	conv, err := chat.NewConversation(currentUser(c).ID, req.Title, req.IsPrivate)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.deps.Conversations.Create(c.Request.Context(), conv); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": toConversationResponse(conv)})
}

// handleGetConversation returns one conversation, subject to access rules.
// Private conversations the caller may not read 404 rather than 403, so
// their existence stays hidden.
func (s *Server) handleGetConversation(c *gin.Context) {
	conv, ok := s.loadConversation(c)
	if !ok {
		return
	}

	user := currentUser(c)
	if !access.CanRead(user, conv) {
		if conv.IsPrivate {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{"code": "CONVERSATION_NOT_FOUND", "message": "conversation not found"},
			})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error": gin.H{"code": "ACCESS_DENIED", "message": "access denied"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": toConversationResponse(conv)})
}

// handlePatchConversation updates title, privacy, or archive state.
func (s *Server) handlePatchConversation(c *gin.Context) {
	var req patchConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	conv, ok := s.loadConversation(c)
	if !ok {
		return
	}

	user := currentUser(c)
	if !access.CanWrite(user, conv) {
		// Same hiding rule as reads: an invisible conversation 404s.
		if conv.IsPrivate && !access.CanRead(user, conv) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{"code": "CONVERSATION_NOT_FOUND", "message": "conversation not found"},
			})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error": gin.H{"code": "ACCESS_DENIED", "message": "access denied"},
		})
		return
	}

	if req.Title != nil {
		if err := chat.ValidateTitle(*req.Title); err != nil {
			s.writeError(c, err)
			return
		}
		conv.Title = *req.Title
	}
	if req.IsPrivate != nil {
		conv.IsPrivate = *req.IsPrivate
	}
	if req.Archived != nil {
		if *req.Archived {
			conv.Archive(time.Now())
		} else {
			conv.Unarchive(time.Now())
		}
	}

	if err := s.deps.Conversations.Update(c.Request.Context(), conv); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": toConversationResponse(conv)})
}

// loadConversation parses the :id parameter and fetches the conversation,
// writing the error response itself on failure.
func (s *Server) loadConversation(c *gin.Context) (*chat.Conversation, bool) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": "CONVERSATION_NOT_FOUND", "message": "conversation not found"},
		})
		return nil, false
	}

	conv, err := s.deps.Conversations.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{"code": "CONVERSATION_NOT_FOUND", "message": "conversation not found"},
			})
			return nil, false
		}
		s.writeError(c, err)
		return nil, false
	}
	return conv, true
}
