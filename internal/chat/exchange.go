// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/silohub/chat/internal/model"
	"github.com/silohub/chat/internal/stream"
)

// =============================================================================
// STATES AND OUTCOMES
// =============================================================================

// ExchangeState is the lifecycle position of one prompt exchange.
type ExchangeState int

const (
	StateIdle ExchangeState = iota
	StateSending
	StateStreaming
	StateFinalizing
	StateAborted
	StateErrored
)

func (s ExchangeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Outcome is how a Send call ended. Exactly one outcome results from every
// call.
type Outcome int

const (
	// OutcomeSuccess means the answer was appended.
	OutcomeSuccess Outcome = iota
	// OutcomeError means an error message was appended.
	OutcomeError
	// OutcomeAborted means the exchange was cancelled and nothing was recorded
	// beyond the user message.
	OutcomeAborted
	// OutcomeSkipped means the target conversation was not held, so nothing
	// was changed.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeAborted:
		return "aborted"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result describes a finished exchange.
type Result struct {
	ExchangeID string
	Outcome    Outcome
	// State is the last state the exchange reached before returning to idle.
	State ExchangeState

	// Conversation is the conversation after the exchange, or nil when skipped.
	Conversation *model.Conversation
	Assistant    *model.ChatMessage
	Tool         *model.ChatMessage

	// Err is the failure behind OutcomeError, or a history write failure that
	// followed a successful answer.
	Err  error
	Kind Kind
}

// =============================================================================
// EXCHANGE
// =============================================================================

// exchange is the state owned by one Send call.
type exchange struct {
	id     string
	cancel context.CancelFunc
	agg    *Aggregator
	begin  time.Time

	// conversationID is the id the conversation is held under; it changes if
	// the server assigns a new one.
	conversationID string
	isNew          bool
	user           *model.ChatMessage

	mu    sync.Mutex
	state ExchangeState
	meta  *stream.HistoryMetadata
}

func (e *exchange) setState(s ExchangeState) ExchangeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.state
	e.state = s
	return prev
}

func (e *exchange) State() ExchangeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *exchange) setMetadata(meta *stream.HistoryMetadata) {
	if meta == nil {
		return
	}
	e.mu.Lock()
	e.meta = meta
	e.mu.Unlock()
}

func (e *exchange) metadata() *stream.HistoryMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}
