// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/silohub/chat/internal/metrics"
	"github.com/silohub/chat/internal/model"
	"github.com/silohub/chat/internal/state"
	"github.com/silohub/chat/internal/stream"
)

// PersistFailedMessage is appended to a conversation whose history write failed.
const PersistFailedMessage = "An error occurred. Answers can't be saved at this time. If the problem persists, please contact the site administrator."

// DefaultReadConcurrency bounds parallel message reads during Load.
const DefaultReadConcurrency = 4

// Option configures a Sync.
type Option func(*Sync)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sync) {
		s.log = l.With().Str("component", "history").Logger()
	}
}

// WithMetrics records history writes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sync) {
		s.metrics = m
	}
}

// WithReadConcurrency bounds the number of conversations read in parallel
// by Load.
func WithReadConcurrency(n int) Option {
	return func(s *Sync) {
		if n > 0 {
			s.readConcurrency = n
		}
	}
}

// Sync writes conversations to the history backend when one is configured
// and healthy, and reflects the results in the state store.
//
// Sync is safe for concurrent use.
type Sync struct {
	backend         Store
	state           *state.Store
	log             zerolog.Logger
	metrics         *metrics.Metrics
	readConcurrency int

	mu     sync.RWMutex
	health Health
}

// NewSync creates a Sync. A nil backend keeps history in memory only.
// The backend is not used for writes until Ensure reports it healthy.
func NewSync(backend Store, st *state.Store, opts ...Option) *Sync {
	s := &Sync{
		backend:         backend,
		state:           st,
		log:             zerolog.Nop(),
		readConcurrency: DefaultReadConcurrency,
		health:          Health{Status: StatusNotConfigured},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Health returns the last known backend health.
func (s *Sync) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

func (s *Sync) setHealth(h Health) {
	s.mu.Lock()
	s.health = h
	s.mu.Unlock()
}

// RemoteEnabled reports whether conversations are written to the backend.
func (s *Sync) RemoteEnabled() bool {
	if s.backend == nil {
		return false
	}
	h := s.Health()
	return h.Available && h.Status == StatusWorking
}

// ServerManaged reports whether the healthy backend is kept by the
// completion service.
func (s *Sync) ServerManaged() bool {
	if !s.RemoteEnabled() {
		return false
	}
	sm, ok := s.backend.(ServerManaged)
	return ok && sm.ServerManaged()
}

// Ensure checks the backend and records its health. A backend that cannot be
// reached is treated as not configured.
func (s *Sync) Ensure(ctx context.Context) Health {
	if s.backend == nil {
		h := Health{Status: StatusNotConfigured}
		s.setHealth(h)
		return h
	}

	h, err := s.backend.Ensure(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("history backend health check failed")
		h = Health{Status: StatusNotConfigured}
	}
	if h.Status == "" {
		h.Status = StatusNotWorking
	}
	s.setHealth(h)

	s.log.Debug().
		Bool("available", h.Available).
		Str("status", string(h.Status)).
		Msg("history backend checked")
	return h
}

// Load checks the backend, then fetches the first page of conversations with
// their messages into the state store. The store's history status moves from
// loading to success or fail.
func (s *Sync) Load(ctx context.Context) error {
	s.state.SetHistoryStatus(state.LoadLoading)

	h := s.Ensure(ctx)
	if !h.Available {
		s.state.SetHistoryStatus(state.LoadFail)
		return nil
	}

	convs, err := s.backend.List(ctx, 0)
	if err != nil {
		s.setHealth(Health{Status: StatusNotWorking})
		s.state.SetHistoryStatus(state.LoadFail)
		return fmt.Errorf("list conversations: %w", err)
	}

	convs, err = s.fillMessages(ctx, convs)
	if err != nil {
		// Conversations whose messages could not be read are still listed.
		s.log.Warn().Err(err).Msg("some conversations could not be read")
	}

	s.state.MergeHistory(convs)
	s.state.SetHistoryStatus(state.LoadSuccess)
	s.log.Info().Int("conversations", len(convs)).Msg("history loaded")
	return nil
}

// fillMessages reads messages for listed conversations that arrived without
// them.
func (s *Sync) fillMessages(ctx context.Context, convs []*model.Conversation) ([]*model.Conversation, error) {
	p := pool.NewWithResults[*model.Conversation]().
		WithMaxGoroutines(s.readConcurrency).
		WithContext(ctx)

	var complete []*model.Conversation
	for _, conv := range convs {
		if conv == nil {
			continue
		}
		if len(conv.Messages) > 0 {
			complete = append(complete, conv)
			continue
		}
		p.Go(func(ctx context.Context) (*model.Conversation, error) {
			msgs, err := s.backend.Read(ctx, conv.ID)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", conv.ID, err)
			}
			conv.Messages = msgs
			return conv, nil
		})
	}

	read, err := p.Wait()
	complete = append(complete, read...)

	if err != nil {
		// Keep unread conversations in the list with no messages.
		seen := make(map[string]bool, len(complete))
		for _, c := range complete {
			seen[c.ID] = true
		}
		for _, conv := range convs {
			if conv != nil && !seen[conv.ID] {
				complete = append(complete, conv)
			}
		}
	}
	return complete, err
}

// Open returns a conversation, reading its messages from the backend when the
// state store holds none, and selects it.
func (s *Sync) Open(ctx context.Context, id string) (*model.Conversation, error) {
	conv, ok := s.state.Conversation(id)
	if ok && (len(conv.Messages) > 0 || !s.RemoteEnabled()) {
		s.state.SetCurrent(id)
		return conv, nil
	}
	if !s.RemoteEnabled() {
		return nil, ErrNotFound
	}

	msgs, err := s.backend.Read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", id, err)
	}
	if !ok {
		conv = model.NewConversation(id, "")
	}
	conv.Messages = msgs
	if conv.Title == "" {
		conv.Title = model.DeriveTitle(msgs)
	}
	s.state.ReplaceConversation(conv)
	s.state.SetCurrent(id)
	return conv, nil
}

// Page lists one page of conversations straight from the backend, without
// messages and without touching the state store.
func (s *Sync) Page(ctx context.Context, offset int) ([]*model.Conversation, error) {
	if !s.RemoteEnabled() {
		return nil, ErrNotConfigured
	}
	convs, err := s.backend.List(ctx, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Persist writes a finished exchange's conversation to the backend.
//
// Conversations holding the no-content error are not written. A failed write
// appends PersistFailedMessage to the conversation and returns a
// *PersistError alongside the updated conversation. Observers are always told
// to re-rank the conversation in the history list.
func (s *Sync) Persist(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if conv == nil {
		return nil, nil
	}

	var persistErr error
	if s.RemoteEnabled() && !conv.HasErrorContaining(stream.NoContentMessage) {
		start := time.Now()
		err := s.backend.Update(ctx, conv)
		d := time.Since(start)

		if err != nil {
			s.metrics.Persisted("error", d)
			s.log.Error().Err(err).Str("conversation", conv.ID).Msg("history update failed")
			persistErr = &PersistError{ConversationID: conv.ID, Op: "update", Err: err}

			errMsg := model.NewErrorMessage(PersistFailedMessage)
			if updated, ok := s.state.AppendMessages(conv.ID, errMsg); ok {
				conv = updated
			} else {
				conv = conv.Clone()
				conv.AddMessage(errMsg)
			}
		} else {
			s.metrics.Persisted("ok", d)
			s.log.Debug().Str("conversation", conv.ID).Dur("took", d).Msg("history updated")
		}
	} else {
		s.metrics.Persisted("skipped", 0)
	}

	s.state.NotifyHistory(conv)
	return conv, persistErr
}

// Clear removes a conversation's messages from the backend and the state
// store.
func (s *Sync) Clear(ctx context.Context, id string) error {
	if !s.RemoteEnabled() {
		return ErrNotConfigured
	}
	if err := s.backend.Clear(ctx, id); err != nil {
		return &PersistError{ConversationID: id, Op: "clear", Err: err}
	}
	s.state.DeleteMessages(id)
	return nil
}

// Delete removes a conversation from the backend and the state store.
func (s *Sync) Delete(ctx context.Context, id string) error {
	if s.RemoteEnabled() {
		if err := s.backend.Delete(ctx, id); err != nil {
			return &PersistError{ConversationID: id, Op: "delete", Err: err}
		}
	}
	s.state.DeleteConversation(id)
	return nil
}

// Feedback records a rating locally and, when history is remote, in the
// backend.
func (s *Sync) Feedback(ctx context.Context, messageID string, fb model.Feedback) error {
	s.state.SetFeedback(messageID, fb)
	if !s.RemoteEnabled() {
		return nil
	}
	if err := s.backend.Feedback(ctx, messageID, fb); err != nil {
		return &PersistError{ConversationID: messageID, Op: "feedback", Err: err}
	}
	return nil
}

// Close closes the backend.
func (s *Sync) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
