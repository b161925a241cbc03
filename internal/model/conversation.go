// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/silohub/chat/internal/util"
)

// MaxTitleRunes bounds titles derived from the first user message.
const MaxTitleRunes = 50

// DefaultTitle is used when a conversation has no usable user text.
const DefaultTitle = "New chat"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is an ordered list of chat messages with an identity and title.
type Conversation struct {
	ID        string         `json:"id" yaml:"id"`
	Title     string         `json:"title" yaml:"title"`
	Messages  []*ChatMessage `json:"messages" yaml:"messages"`
	CreatedAt time.Time      `json:"date" yaml:"date"`
	UpdatedAt time.Time      `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// NewConversation creates an empty conversation. An empty id gets a fresh one.
func NewConversation(id, title string) *Conversation {
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		Title:     title,
		Messages:  make([]*ChatMessage, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends messages in order. Nil messages are ignored.
func (c *Conversation) AddMessage(msgs ...*ChatMessage) {
	for _, m := range msgs {
		if m == nil {
			continue
		}
		c.Messages = append(c.Messages, m)
	}
	c.UpdatedAt = time.Now().UTC()
	if c.Title == "" {
		c.Title = DeriveTitle(c.Messages)
	}
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *ChatMessage {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageByID finds a message by id.
func (c *Conversation) MessageByID(id string) *ChatMessage {
	for _, m := range c.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// UpstreamMessages returns the messages that may be sent to the completion
// service. Error messages are local only.
func (c *Conversation) UpstreamMessages() []*ChatMessage {
	out := make([]*ChatMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.IsError() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// HasErrorContaining reports whether any error message contains substr.
func (c *Conversation) HasErrorContaining(substr string) bool {
	for _, m := range c.Messages {
		if m.IsError() && strings.Contains(m.Text(), substr) {
			return true
		}
	}
	return false
}

// ClearMessages drops every message but keeps the conversation identity.
func (c *Conversation) ClearMessages() {
	c.Messages = make([]*ChatMessage, 0)
	c.UpdatedAt = time.Now().UTC()
}

// IsEmpty reports whether the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]*ChatMessage, len(c.Messages))
	for i, m := range c.Messages {
		cp.Messages[i] = m.Clone()
	}
	return &cp
}

// =============================================================================
// METADATA
// =============================================================================

// ConversationMeta is the lightweight view used by history lists.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"date"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// Meta returns the listing metadata for c.
func (c *Conversation) Meta() ConversationMeta {
	preview := ""
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			preview = util.TruncateRunes(util.SingleLine(m.Text()), 80)
			break
		}
	}
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
		Preview:      preview,
	}
}

// DeriveTitle builds a title from the first user message with text.
func DeriveTitle(msgs []*ChatMessage) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		if t := TitleFromText(m.Text()); t != "" {
			return t
		}
	}
	return DefaultTitle
}

// TitleFromText normalizes text into a single-line NFC title.
func TitleFromText(text string) string {
	t := util.SingleLine(norm.NFC.String(text))
	return util.TruncateRunes(t, MaxTitleRunes)
}
