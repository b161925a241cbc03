// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silohub/chat/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "/conversation", cfg.ConversationPath)
	assert.Equal(t, "/history/generate", cfg.GeneratePath)
	assert.Equal(t, 60*time.Second, cfg.HeaderTimeout)
}

func TestNewClientWithConfig_FillsDefaults(t *testing.T) {
	c := NewClientWithConfig(&Config{BaseURL: "http://example.test/"})
	cfg := c.GetConfig()
	assert.Equal(t, "http://example.test", cfg.BaseURL)
	assert.Equal(t, "/conversation", cfg.ConversationPath)
	assert.Equal(t, 1, cfg.Burst)
	assert.Nil(t, c.limiter)
}

func TestSendPrompt_LocalEndpoint(t *testing.T) {
	var gotPath string
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := NewClientWithConfig(&Config{BaseURL: srv.URL, Headers: map[string]string{"X-Api-Key": "abc"}})
	resp, err := c.SendPrompt(context.Background(), Request{
		ConversationID: "ignored",
		Messages:       []*model.ChatMessage{model.NewMessage(model.RoleUser, "hi")},
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, resp.OK())
	assert.Equal(t, "/conversation", gotPath)
	assert.Contains(t, got, "messages")
	assert.NotContains(t, got, "conversation_id")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"choices":[]}`, string(body))
}

func TestSendPrompt_HistoryEndpoint(t *testing.T) {
	var gotPath string
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewClientWithConfig(&Config{BaseURL: srv.URL})
	resp, err := c.SendPrompt(context.Background(), Request{
		ConversationID: "c-1",
		Messages:       []*model.ChatMessage{model.NewMessage(model.RoleUser, "hi")},
		WithHistory:    true,
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "/history/generate", gotPath)
	assert.Equal(t, "c-1", got.ConversationID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Text())
}

func TestSendPrompt_NonOKIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"backend exploded"}`)
	}))
	defer srv.Close()

	resp, err := NewClientWithConfig(&Config{BaseURL: srv.URL}).SendPrompt(context.Background(), Request{})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "backend exploded", resp.ErrorMessage())
}

func TestResponse_ErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"error":"boom"}`, "boom"},
		{"object", `{"error":{"message":"nested"}}`, "nested"},
		{"null", `{"error":null}`, ""},
		{"missing", `{"detail":"x"}`, ""},
		{"not json", `<html>502</html>`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Response{StatusCode: 500, Body: io.NopCloser(strings.NewReader(tt.body))}
			assert.Equal(t, tt.want, r.ErrorMessage())
		})
	}
}

func TestSendPrompt_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClientWithConfig(&Config{BaseURL: url}).SendPrompt(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, IsTimeout(err))
}

func TestSendPrompt_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClientWithConfig(&Config{BaseURL: srv.URL}).SendPrompt(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendPrompt_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClientWithConfig(&Config{BaseURL: srv.URL, RequestsPerSecond: 0.001, Burst: 1})
	resp, err := c.SendPrompt(context.Background(), Request{})
	require.NoError(t, err)
	resp.Body.Close()

	// The second request cannot get a token before the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.SendPrompt(ctx, Request{})
	require.Error(t, err)
}

func TestError_Is(t *testing.T) {
	err := &Error{Type: ErrTypeTimeout, Message: "slow", Cause: io.ErrUnexpectedEOF}
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "slow: unexpected EOF", err.Error())
}

func TestStatusError(t *testing.T) {
	err := StatusError(&Response{StatusCode: 502, Status: "502 Bad Gateway"})
	assert.Equal(t, ErrTypeStatus, err.Type)
	assert.Equal(t, "completion service returned 502 Bad Gateway", err.Error())
	assert.False(t, errors.Is(err, ErrUnavailable))
}
