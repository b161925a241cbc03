// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleError     Role = "error"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleTool:
		return "Tool"
	case RoleError:
		return "Error"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleError:
		return true
	}
	return false
}

// =============================================================================
// FEEDBACK
// =============================================================================

// Feedback is the user's rating of an assistant answer.
type Feedback string

const (
	FeedbackNeutral  Feedback = "neutral"
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ChatMessage is a single turn in a conversation.
//
// Assistant, tool and error messages always carry plain text content. Only
// user messages may be multi-part.
type ChatMessage struct {
	ID       string    `json:"id" yaml:"id"`
	Role     Role      `json:"role" yaml:"role"`
	Content  Content   `json:"content" yaml:"content"`
	Date     time.Time `json:"date" yaml:"date"`
	Context  string    `json:"context,omitempty" yaml:"context,omitempty"`
	Feedback Feedback  `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(role Role, text string) *ChatMessage {
	return &ChatMessage{
		ID:      NewID(),
		Role:    role,
		Content: Text(text),
		Date:    time.Now().UTC(),
	}
}

// NewUserMessage creates a user message from arbitrary content.
func NewUserMessage(content Content) *ChatMessage {
	return &ChatMessage{
		ID:      NewID(),
		Role:    RoleUser,
		Content: content,
		Date:    time.Now().UTC(),
	}
}

// NewToolMessage creates a tool message holding a raw context payload.
func NewToolMessage(payload string) *ChatMessage {
	return NewMessage(RoleTool, payload)
}

// NewErrorMessage creates an error message. Error messages are shown to the
// user but never sent upstream.
func NewErrorMessage(text string) *ChatMessage {
	return NewMessage(RoleError, text)
}

// Text returns the message content flattened to text.
func (m *ChatMessage) Text() string {
	if m == nil {
		return ""
	}
	return m.Content.String()
}

// IsError reports whether m is an error-role message.
func (m *ChatMessage) IsError() bool {
	return m != nil && m.Role == RoleError
}

// Clone returns a copy of m that shares no mutable state.
func (m *ChatMessage) Clone() *ChatMessage {
	if m == nil {
		return nil
	}
	c := *m
	c.Content = m.Content.Clone()
	return &c
}

// NewID returns a new random message or conversation identifier.
func NewID() string {
	return uuid.NewString()
}
