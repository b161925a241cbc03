// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/silohub/chat/internal/model"
)

// =============================================================================
// HTTP STORE CONFIGURATION
// =============================================================================

// HTTPConfig configures the remote history API client.
type HTTPConfig struct {
	// BaseURL is the service root (required)
	BaseURL string

	// Timeout bounds each history call (default: 30s)
	Timeout time.Duration

	// Headers are added to every request
	Headers map[string]string
}

// HTTPStore is the remote history API.
//
// The HTTPStore is thread-safe for concurrent use.
type HTTPStore struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// NewHTTPStore creates a remote history client.
func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("history base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPStore{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers:    cfg.Headers,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type conversationRequest struct {
	ConversationID string               `json:"conversation_id"`
	Messages       []*model.ChatMessage `json:"messages,omitempty"`
}

type readResponse struct {
	ConversationID string               `json:"conversation_id"`
	Messages       []*model.ChatMessage `json:"messages"`
}

type feedbackRequest struct {
	MessageID string         `json:"message_id"`
	Feedback  model.Feedback `json:"message_feedback"`
}

// =============================================================================
// STORE OPERATIONS
// =============================================================================

// Ensure calls /history/ensure. Unhealthy backends answer with a non-2xx
// status and a Health body, which is returned without error.
func (s *HTTPStore) Ensure(ctx context.Context) (Health, error) {
	resp, err := s.do(ctx, http.MethodGet, "/history/ensure", nil)
	if err != nil {
		return Health{}, err
	}
	defer drainAndClose(resp.Body)

	var h Health
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&h)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if decodeErr != nil {
			return Health{}, fmt.Errorf("decode ensure response: %w", decodeErr)
		}
		if h.Status == "" {
			h.Status = StatusWorking
		}
		return h, nil
	}

	h.Available = false
	if decodeErr != nil || h.Status == "" {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			h.Status = StatusInvalidCredentials
		case http.StatusNotFound:
			h.Status = StatusNotConfigured
		default:
			h.Status = StatusNotWorking
		}
	}
	return h, nil
}

// List calls /history/list.
func (s *HTTPStore) List(ctx context.Context, offset int) ([]*model.Conversation, error) {
	resp, err := s.do(ctx, http.MethodGet, "/history/list?offset="+strconv.Itoa(offset), nil)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var convs []*model.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&convs); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	for _, c := range convs {
		if c != nil && c.Messages == nil {
			c.Messages = []*model.ChatMessage{}
		}
	}
	return convs, nil
}

// Read calls /history/read.
func (s *HTTPStore) Read(ctx context.Context, conversationID string) ([]*model.ChatMessage, error) {
	resp, err := s.do(ctx, http.MethodPost, "/history/read", conversationRequest{ConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out readResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode read response: %w", err)
	}
	if out.Messages == nil {
		out.Messages = []*model.ChatMessage{}
	}
	return out.Messages, nil
}

// Update calls /history/update with the conversation's messages.
func (s *HTTPStore) Update(ctx context.Context, conv *model.Conversation) error {
	return s.call(ctx, http.MethodPost, "/history/update", conversationRequest{
		ConversationID: conv.ID,
		Messages:       conv.Messages,
	})
}

// Clear calls /history/clear.
func (s *HTTPStore) Clear(ctx context.Context, conversationID string) error {
	return s.call(ctx, http.MethodPost, "/history/clear", conversationRequest{ConversationID: conversationID})
}

// Delete calls /history/delete.
func (s *HTTPStore) Delete(ctx context.Context, conversationID string) error {
	return s.call(ctx, http.MethodDelete, "/history/delete", conversationRequest{ConversationID: conversationID})
}

// Feedback calls /history/message_feedback.
func (s *HTTPStore) Feedback(ctx context.Context, messageID string, fb model.Feedback) error {
	return s.call(ctx, http.MethodPost, "/history/message_feedback", feedbackRequest{
		MessageID: messageID,
		Feedback:  fb,
	})
}

// ServerManaged reports true: this history lives on the completion service.
func (s *HTTPStore) ServerManaged() bool { return true }

// Close releases idle connections.
func (s *HTTPStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

const maxResponseBody = 64 << 10

func (s *HTTPStore) call(ctx context.Context, method, path string, body interface{}) error {
	resp, err := s.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return checkStatus(resp)
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// checkStatus turns a non-2xx response into a *StatusError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

// drainAndClose lets the connection be reused.
func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, maxResponseBody))
	body.Close()
}
