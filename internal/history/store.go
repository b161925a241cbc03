// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists conversations to a durable history backend and
// keeps the in-memory state store in step with it.
//
// Three backends implement Store:
//   - HTTPStore talks to the remote history API
//   - SQLiteStore keeps history in a local SQLite database
//   - FileStore writes one JSON document per conversation
//
// Sync decides when to write. When no backend is configured, or the backend
// reported itself unhealthy, conversations stay in memory only.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/silohub/chat/internal/model"
)

// =============================================================================
// BACKEND HEALTH
// =============================================================================

// Status describes the history backend's health.
type Status string

const (
	StatusNotConfigured      Status = "not_configured"
	StatusNotWorking         Status = "not_working"
	StatusWorking            Status = "working"
	StatusInvalidCredentials Status = "invalid_credentials"
	StatusInvalidDatabase    Status = "invalid_database"
)

// Health is the result of an Ensure call.
type Health struct {
	Available bool   `json:"available"`
	Status    Status `json:"status"`
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// DefaultPageSize is the number of conversations returned by one List call.
const DefaultPageSize = 25

// Store is a history backend.
type Store interface {
	// Ensure checks that the backend is reachable and usable.
	Ensure(ctx context.Context) (Health, error)

	// List returns one page of conversations, most recently updated first.
	// Messages may be omitted; use Read to fetch them.
	List(ctx context.Context, offset int) ([]*model.Conversation, error)

	// Read returns the messages of a conversation.
	Read(ctx context.Context, conversationID string) ([]*model.ChatMessage, error)

	// Update writes the conversation, creating it if needed.
	Update(ctx context.Context, conv *model.Conversation) error

	// Clear removes every message of a conversation but keeps the conversation.
	Clear(ctx context.Context, conversationID string) error

	// Delete removes a conversation entirely.
	Delete(ctx context.Context, conversationID string) error

	// Feedback records the user's rating of an assistant message.
	Feedback(ctx context.Context, messageID string, fb model.Feedback) error

	// Close releases backend resources.
	Close() error
}

// ServerManaged is implemented by backends that live on the completion
// service itself. While such a backend is healthy, prompts go through the
// history-aware endpoint and the server assigns conversation ids.
type ServerManaged interface {
	ServerManaged() bool
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrNotFound is returned when a conversation does not exist in the backend.
var ErrNotFound = errors.New("conversation not found")

// ErrNotConfigured is returned by Sync operations that need a backend.
var ErrNotConfigured = errors.New("history backend not configured")

// PersistError reports a failed history write.
type PersistError struct {
	ConversationID string
	Op             string
	Err            error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.ConversationID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// StatusError is returned by HTTPStore for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("history API returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("history API returned %d", e.Code)
}
