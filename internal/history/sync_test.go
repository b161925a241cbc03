// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silohub/chat/internal/metrics"
	"github.com/silohub/chat/internal/model"
	"github.com/silohub/chat/internal/state"
	"github.com/silohub/chat/internal/stream"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

type memStore struct {
	mu        sync.Mutex
	health    Health
	ensureErr error
	listErr   error
	readErr   map[string]error
	updateErr error
	convs     map[string]*model.Conversation
	updates   int
	feedback  map[string]model.Feedback
	closed    bool
}

func newMemStore() *memStore {
	return &memStore{
		health:   Health{Available: true, Status: StatusWorking},
		readErr:  map[string]error{},
		convs:    map[string]*model.Conversation{},
		feedback: map[string]model.Feedback{},
	}
}

func (m *memStore) Ensure(ctx context.Context) (Health, error) {
	return m.health, m.ensureErr
}

func (m *memStore) List(ctx context.Context, offset int) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*model.Conversation
	for _, c := range m.convs {
		meta := c.Clone()
		meta.Messages = nil
		out = append(out, meta)
	}
	return out, nil
}

func (m *memStore) Read(ctx context.Context, id string) ([]*model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr[id]; err != nil {
		return nil, err
	}
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone().Messages, nil
}

func (m *memStore) Update(ctx context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	m.convs[conv.ID] = conv.Clone()
	return nil
}

func (m *memStore) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return ErrNotFound
	}
	c.ClearMessages()
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[id]; !ok {
		return ErrNotFound
	}
	delete(m.convs, id)
	return nil
}

func (m *memStore) Feedback(ctx context.Context, id string, fb model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback[id] = fb
	return nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

type historyRecorder struct {
	state.NopObserver
	mu      sync.Mutex
	history []string
}

func (r *historyRecorder) HistoryUpdated(conv *model.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, conv.ID)
}

func sampleConversation(id string) *model.Conversation {
	conv := model.NewConversation(id, "")
	conv.AddMessage(
		model.NewMessage(model.RoleUser, "What is the capital of France?"),
		model.NewMessage(model.RoleAssistant, "Paris."),
	)
	return conv
}

// =============================================================================
// SYNC TESTS
// =============================================================================

func TestSync_NoBackend(t *testing.T) {
	st := state.NewStore()
	rec := &historyRecorder{}
	st.Subscribe(rec)
	s := NewSync(nil, st)

	h := s.Ensure(context.Background())
	assert.Equal(t, StatusNotConfigured, h.Status)
	assert.False(t, s.RemoteEnabled())

	conv := sampleConversation("c1")
	out, err := s.Persist(context.Background(), conv)
	require.NoError(t, err)
	assert.Len(t, out.Messages, 2)
	assert.Equal(t, []string{"c1"}, rec.history)

	assert.ErrorIs(t, s.Clear(context.Background(), "c1"), ErrNotConfigured)
	assert.NoError(t, s.Close())
}

func TestSync_RemoteDisabledUntilEnsure(t *testing.T) {
	backend := newMemStore()
	s := NewSync(backend, state.NewStore())
	assert.False(t, s.RemoteEnabled())

	_, err := s.Persist(context.Background(), sampleConversation("c1"))
	require.NoError(t, err)
	assert.Equal(t, 0, backend.updates)

	s.Ensure(context.Background())
	assert.True(t, s.RemoteEnabled())
	assert.False(t, s.ServerManaged(), "a local store never takes over the completion endpoint")
}

func TestSync_EnsureError(t *testing.T) {
	backend := newMemStore()
	backend.ensureErr = errors.New("dial tcp: connection refused")
	s := NewSync(backend, state.NewStore())

	h := s.Ensure(context.Background())
	assert.False(t, h.Available)
	assert.Equal(t, StatusNotConfigured, h.Status)
	assert.False(t, s.RemoteEnabled())
}

func TestSync_PersistWritesRemote(t *testing.T) {
	backend := newMemStore()
	st := state.NewStore()
	rec := &historyRecorder{}
	st.Subscribe(rec)
	m := metrics.New(prometheus.NewRegistry())
	s := NewSync(backend, st, WithMetrics(m))
	s.Ensure(context.Background())

	conv := sampleConversation("c1")
	out, err := s.Persist(context.Background(), conv)
	require.NoError(t, err)
	assert.Len(t, out.Messages, 2)
	assert.Equal(t, 1, backend.updates)
	assert.Contains(t, backend.convs, "c1")
	assert.Equal(t, []string{"c1"}, rec.history)
}

func TestSync_PersistFailureAppendsError(t *testing.T) {
	backend := newMemStore()
	backend.updateErr = errors.New("503")
	st := state.NewStore()
	s := NewSync(backend, st)
	s.Ensure(context.Background())

	conv := sampleConversation("c1")
	st.ReplaceConversation(conv)

	out, err := s.Persist(context.Background(), conv)
	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "c1", perr.ConversationID)
	assert.Equal(t, "update", perr.Op)

	require.Len(t, out.Messages, 3)
	last := out.LastMessage()
	assert.Equal(t, model.RoleError, last.Role)
	assert.Equal(t, PersistFailedMessage, last.Text())

	held, ok := st.Conversation("c1")
	require.True(t, ok)
	assert.Equal(t, PersistFailedMessage, held.LastMessage().Text())

	// No retry.
	assert.Equal(t, 1, backend.updates)
}

func TestSync_PersistSkipsNoContent(t *testing.T) {
	backend := newMemStore()
	st := state.NewStore()
	rec := &historyRecorder{}
	st.Subscribe(rec)
	s := NewSync(backend, st)
	s.Ensure(context.Background())

	conv := model.NewConversation("c1", "")
	conv.AddMessage(
		model.NewMessage(model.RoleUser, "hi"),
		model.NewErrorMessage(stream.NoContentMessage),
	)

	_, err := s.Persist(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 0, backend.updates)
	assert.Equal(t, []string{"c1"}, rec.history)
}

func TestSync_Load(t *testing.T) {
	backend := newMemStore()
	for _, id := range []string{"a", "b", "c"} {
		backend.convs[id] = sampleConversation(id)
	}
	backend.readErr["c"] = errors.New("boom")

	st := state.NewStore()
	s := NewSync(backend, st, WithReadConcurrency(2))

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, state.LoadSuccess, st.HistoryStatus())
	assert.True(t, s.RemoteEnabled())

	a, ok := st.Conversation("a")
	require.True(t, ok)
	assert.Len(t, a.Messages, 2)

	// Unreadable conversations are listed without messages.
	c, ok := st.Conversation("c")
	require.True(t, ok)
	assert.Empty(t, c.Messages)
	assert.Len(t, st.List(), 3)
}

func TestSync_LoadUnavailable(t *testing.T) {
	backend := newMemStore()
	backend.health = Health{Status: StatusInvalidCredentials}
	st := state.NewStore()
	s := NewSync(backend, st)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, state.LoadFail, st.HistoryStatus())
	assert.Equal(t, StatusInvalidCredentials, s.Health().Status)
}

func TestSync_LoadListFailure(t *testing.T) {
	backend := newMemStore()
	backend.listErr = errors.New("timeout")
	st := state.NewStore()
	s := NewSync(backend, st)

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, state.LoadFail, st.HistoryStatus())
	assert.Equal(t, StatusNotWorking, s.Health().Status)
	assert.False(t, s.RemoteEnabled())
}

func TestSync_Open(t *testing.T) {
	backend := newMemStore()
	backend.convs["c1"] = sampleConversation("c1")
	st := state.NewStore()
	s := NewSync(backend, st)
	s.Ensure(context.Background())

	conv, err := s.Open(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)
	assert.Equal(t, "c1", st.Current().ID)

	_, err = s.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSync_Page(t *testing.T) {
	backend := newMemStore()
	backend.convs["c1"] = sampleConversation("c1")
	st := state.NewStore()
	s := NewSync(backend, st)

	_, err := s.Page(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotConfigured)

	s.Ensure(context.Background())
	page, err := s.Page(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Empty(t, page[0].Messages)
	assert.Empty(t, st.List(), "paging leaves the state store alone")
}

func TestSync_ClearDeleteFeedback(t *testing.T) {
	backend := newMemStore()
	conv := sampleConversation("c1")
	backend.convs["c1"] = conv.Clone()
	st := state.NewStore()
	st.ReplaceConversation(conv)
	s := NewSync(backend, st)
	s.Ensure(context.Background())

	answer := conv.Messages[1].ID
	require.NoError(t, s.Feedback(context.Background(), answer, model.FeedbackPositive))
	assert.Equal(t, model.FeedbackPositive, st.Feedback(answer))
	assert.Equal(t, model.FeedbackPositive, backend.feedback[answer])

	require.NoError(t, s.Clear(context.Background(), "c1"))
	held, ok := st.Conversation("c1")
	require.True(t, ok)
	assert.Empty(t, held.Messages)

	require.NoError(t, s.Delete(context.Background(), "c1"))
	_, ok = st.Conversation("c1")
	assert.False(t, ok)

	err := s.Delete(context.Background(), "c1")
	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Close())
	assert.True(t, backend.closed)
}
