// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/silohub/chat/internal/model"
)

// =============================================================================
// WIRE RECORDS
// =============================================================================

// Fragment is one decoded record of the completion stream.
type Fragment struct {
	ID              string           `json:"id"`
	Model           string           `json:"model,omitempty"`
	Created         int64            `json:"created,omitempty"`
	Object          string           `json:"object,omitempty"`
	Choices         []Choice         `json:"choices,omitempty"`
	Error           *ErrorValue      `json:"error,omitempty"`
	HistoryMetadata *HistoryMetadata `json:"history_metadata,omitempty"`
}

// Choice holds the message deltas of one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Messages     []Delta `json:"messages"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Delta is a partial chat message. A nil Content means the field was absent.
type Delta struct {
	ID      string     `json:"id,omitempty"`
	Role    model.Role `json:"role"`
	Content *string    `json:"content"`
	Context RawText    `json:"context,omitempty"`
}

// Text returns the delta content, or "" when absent.
func (d Delta) Text() string {
	if d.Content == nil {
		return ""
	}
	return *d.Content
}

// HistoryMetadata identifies the server-side conversation a stream belongs to.
type HistoryMetadata struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Date           string `json:"date"`
}

// Time parses Date, returning the zero time when it is missing or malformed.
func (h *HistoryMetadata) Time() time.Time {
	if h == nil || h.Date == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, h.Date); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Messages returns the deltas of the first choice.
func (f *Fragment) Messages() []Delta {
	if f == nil || len(f.Choices) == 0 {
		return nil
	}
	return f.Choices[0].Messages
}

// ErrorMessage returns the record's error text, or "" when it carries none.
func (f *Fragment) ErrorMessage() string {
	if f == nil || f.Error == nil {
		return ""
	}
	return f.Error.Message
}

// =============================================================================
// FLEXIBLE FIELDS
// =============================================================================

// ErrorValue accepts either a bare string or an object with a message field.
type ErrorValue struct {
	Message string
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ErrorValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Message)
	}
	var obj struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && len(obj.Message) > 0 {
		var s string
		if json.Unmarshal(obj.Message, &s) == nil {
			e.Message = s
			return nil
		}
		e.Message = string(obj.Message)
		return nil
	}
	e.Message = string(data)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e ErrorValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Message)
}

// RawText holds a field that may be a JSON string or an arbitrary JSON value.
// Strings are stored unquoted; anything else keeps its JSON text.
type RawText string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawText(s)
		return nil
	}
	*r = RawText(data)
	return nil
}
