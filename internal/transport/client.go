// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the HTTP client that sends prompts to the
// completion service and hands back the streaming response body.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/silohub/chat/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Error represents a failure to reach the completion service.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// ErrorType categorizes transport errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeEncode
	ErrTypeStatus
)

// Sentinel errors for easy checking.
var (
	ErrUnavailable = &Error{Type: ErrTypeConnection, Message: "completion service is unreachable"}
	ErrTimeout     = &Error{Type: ErrTypeTimeout, Message: "request timed out"}
)

// StatusError builds the error for a response that was not accepted.
func StatusError(resp *Response) *Error {
	return &Error{Type: ErrTypeStatus, Message: "completion service returned " + resp.Status}
}

// IsTimeout checks if an error is a transport timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the transport client.
type Config struct {
	// BaseURL is the service root (default: http://127.0.0.1:5000)
	BaseURL string

	// ConversationPath is used when history is kept locally (default: /conversation)
	ConversationPath string

	// GeneratePath is used when the server keeps history (default: /history/generate)
	GeneratePath string

	// HeaderTimeout bounds the wait for response headers; the body may stream
	// for as long as the caller's context allows (default: 60s)
	HeaderTimeout time.Duration

	// RequestsPerSecond limits outgoing prompts (0 = unlimited)
	RequestsPerSecond float64

	// Burst is the limiter burst size (default: 1)
	Burst int

	// Headers are added to every request
	Headers map[string]string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "http://127.0.0.1:5000",
		ConversationPath: "/conversation",
		GeneratePath:     "/history/generate",
		HeaderTimeout:    60 * time.Second,
		Burst:            1,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Request is one prompt exchange.
type Request struct {
	// ConversationID is sent only when the server keeps history.
	ConversationID string
	// Messages is the conversation to continue, error messages already removed.
	Messages []*model.ChatMessage
	// WithHistory selects the history-aware endpoint.
	WithHistory bool
}

type wireRequest struct {
	ConversationID string               `json:"conversation_id,omitempty"`
	Messages       []*model.ChatMessage `json:"messages"`
}

// Response is a completion response whose body has not been consumed.
// The caller must close Body.
type Response struct {
	StatusCode int
	Status     string
	Body       io.ReadCloser
}

// OK reports whether the service accepted the prompt.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// ErrorMessage reads a failed response body and returns its "error" field,
// or "" when the body has none.
func (r *Response) ErrorMessage() string {
	if r.Body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Error) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(body.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body.Error, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	if string(body.Error) == "null" {
		return ""
	}
	return string(body.Error)
}

// Client sends prompts to the completion service.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client with custom configuration.
func NewClientWithConfig(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.ConversationPath == "" {
		config.ConversationPath = defaults.ConversationPath
	}
	if config.GeneratePath == "" {
		config.GeneratePath = defaults.GeneratePath
	}
	if config.HeaderTimeout == 0 {
		config.HeaderTimeout = defaults.HeaderTimeout
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}

	// No overall client timeout: the body streams until the context ends.
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = config.HeaderTimeout

	c := &Client{
		config:     config,
		httpClient: &http.Client{Transport: tr},
	}
	if config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	return c
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *Config {
	return c.config
}

// SendPrompt posts the conversation and returns the response with its body
// unread. Non-2xx statuses are returned as a Response, not an error.
// If ctx is cancelled the context error is returned unchanged.
func (c *Client) SendPrompt(ctx context.Context, req Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &Error{Type: ErrTypeUnknown, Message: "rate limiter rejected request", Cause: err}
		}
	}

	body := wireRequest{Messages: req.Messages}
	path := c.config.ConversationPath
	if req.WithHistory {
		path = c.config.GeneratePath
		body.ConversationID = req.ConversationID
	}
	if body.Messages == nil {
		body.Messages = []*model.ChatMessage{}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Type: ErrTypeEncode, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &Error{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
		}
		return nil, &Error{Type: ErrTypeConnection, Message: ErrUnavailable.Message, Cause: err}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       resp.Body,
	}, nil
}
