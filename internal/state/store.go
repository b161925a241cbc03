// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state holds the client's shared chat state behind a small set of
// mutation methods.
package state

import (
	"sort"
	"sync"

	"github.com/silohub/chat/internal/model"
)

// =============================================================================
// OBSERVERS
// =============================================================================

// Observer is notified after state changes. Callbacks run outside the store
// lock and receive copies, so they may call back into the store.
type Observer interface {
	// ConversationUpdated fires when a conversation's messages change.
	ConversationUpdated(conv *model.Conversation)
	// HistoryUpdated fires when a conversation should move to the top of the
	// history list.
	HistoryUpdated(conv *model.Conversation)
	// LoadingChanged reports the request-in-flight flag and whether the
	// "waiting for first token" placeholder should be shown.
	LoadingChanged(loading, placeholder bool)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) ConversationUpdated(*model.Conversation) {}
func (NopObserver) HistoryUpdated(*model.Conversation)      {}
func (NopObserver) LoadingChanged(bool, bool)               {}

// LoadStatus tracks the history list bootstrap.
type LoadStatus string

const (
	LoadNotStarted LoadStatus = "not_started"
	LoadLoading    LoadStatus = "loading"
	LoadSuccess    LoadStatus = "success"
	LoadFail       LoadStatus = "fail"
)

// =============================================================================
// STORE
// =============================================================================

// Store is the single owner of conversations, the current selection,
// execution results, feedback and loading flags.
//
// The Store is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	currentID     string
	execResults   map[string][]model.ExecResult
	feedback      map[string]model.Feedback
	loading       bool
	placeholder   bool
	historyStatus LoadStatus
	observers     []Observer
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*model.Conversation),
		execResults:   make(map[string][]model.ExecResult),
		feedback:      make(map[string]model.Feedback),
		historyStatus: LoadNotStarted,
	}
}

// Subscribe registers an observer.
func (s *Store) Subscribe(obs Observer) {
	if obs == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *Store) snapshotObservers() []Observer {
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// Conversation returns a copy of the conversation with id.
func (s *Store) Conversation(id string) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// Current returns a copy of the selected conversation, or nil.
func (s *Store) Current() *model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conv, ok := s.conversations[s.currentID]; ok {
		return conv.Clone()
	}
	return nil
}

// SetCurrent selects a conversation. An empty id clears the selection.
func (s *Store) SetCurrent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		s.currentID = ""
		return true
	}
	if _, ok := s.conversations[id]; !ok {
		return false
	}
	s.currentID = id
	return true
}

// AppendMessages adds messages to an existing conversation and returns a copy
// of the result. It reports false if the conversation does not exist.
func (s *Store) AppendMessages(id string, msgs ...*model.ChatMessage) (*model.Conversation, bool) {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	for _, m := range msgs {
		conv.AddMessage(m.Clone())
	}
	out := conv.Clone()
	observers := s.snapshotObservers()
	s.mu.Unlock()

	for _, obs := range observers {
		obs.ConversationUpdated(out.Clone())
	}
	return out, true
}

// ReplaceConversation inserts or overwrites a conversation and selects it.
func (s *Store) ReplaceConversation(conv *model.Conversation) {
	if conv == nil {
		return
	}
	cp := conv.Clone()

	s.mu.Lock()
	s.conversations[cp.ID] = cp
	s.currentID = cp.ID
	observers := s.snapshotObservers()
	s.mu.Unlock()

	for _, obs := range observers {
		obs.ConversationUpdated(cp.Clone())
	}
}

// DeleteMessages empties a conversation but keeps it in the list.
func (s *Store) DeleteMessages(id string) bool {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	conv.ClearMessages()
	out := conv.Clone()
	observers := s.snapshotObservers()
	s.mu.Unlock()

	for _, obs := range observers {
		obs.ConversationUpdated(out.Clone())
	}
	return true
}

// DeleteConversation removes a conversation entirely.
func (s *Store) DeleteConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false
	}
	delete(s.conversations, id)
	if s.currentID == id {
		s.currentID = ""
	}
	return true
}

// MergeHistory adds conversations loaded from a history backend. Conversations
// already held in memory win over the loaded copies.
func (s *Store) MergeHistory(convs []*model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range convs {
		if conv == nil {
			continue
		}
		if _, exists := s.conversations[conv.ID]; exists {
			continue
		}
		s.conversations[conv.ID] = conv.Clone()
	}
}

// List returns conversation metadata, most recently updated first.
func (s *Store) List() []model.ConversationMeta {
	s.mu.RLock()
	metas := make([]model.ConversationMeta, 0, len(s.conversations))
	for _, conv := range s.conversations {
		metas = append(metas, conv.Meta())
	}
	s.mu.RUnlock()

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas
}

// NotifyHistory tells observers a conversation should be re-ranked in the
// history list.
func (s *Store) NotifyHistory(conv *model.Conversation) {
	if conv == nil {
		return
	}
	s.mu.RLock()
	observers := s.snapshotObservers()
	s.mu.RUnlock()

	for _, obs := range observers {
		obs.HistoryUpdated(conv.Clone())
	}
}

// =============================================================================
// EXEC RESULTS AND FEEDBACK
// =============================================================================

// SetExecResults records execution results for an assistant answer.
func (s *Store) SetExecResults(answerID string, results []model.ExecResult) {
	cp := make([]model.ExecResult, len(results))
	copy(cp, results)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.execResults[answerID] = cp
}

// ExecResults returns the execution results for an answer, in arrival order.
func (s *Store) ExecResults(answerID string) []model.ExecResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := s.execResults[answerID]
	if res == nil {
		return nil
	}
	cp := make([]model.ExecResult, len(res))
	copy(cp, res)
	return cp
}

// SetFeedback records the user's rating of an answer and stamps it on the
// matching message, if one is held.
func (s *Store) SetFeedback(answerID string, fb model.Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[answerID] = fb
	for _, conv := range s.conversations {
		for _, m := range conv.Messages {
			if m.ID == answerID && m.Role == model.RoleAssistant {
				m.Feedback = fb
			}
		}
	}
}

// Feedback returns the rating of an answer, or FeedbackNeutral.
func (s *Store) Feedback(answerID string) model.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fb, ok := s.feedback[answerID]; ok {
		return fb
	}
	return model.FeedbackNeutral
}

// =============================================================================
// LOADING FLAGS
// =============================================================================

// SetLoading updates the in-flight flags and notifies observers on change.
func (s *Store) SetLoading(loading, placeholder bool) {
	s.mu.Lock()
	if s.loading == loading && s.placeholder == placeholder {
		s.mu.Unlock()
		return
	}
	s.loading = loading
	s.placeholder = placeholder
	observers := s.snapshotObservers()
	s.mu.Unlock()

	for _, obs := range observers {
		obs.LoadingChanged(loading, placeholder)
	}
}

// Loading returns the in-flight and placeholder flags.
func (s *Store) Loading() (loading, placeholder bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading, s.placeholder
}

// SetHistoryStatus records the history bootstrap status.
func (s *Store) SetHistoryStatus(status LoadStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyStatus = status
}

// HistoryStatus returns the history bootstrap status.
func (s *Store) HistoryStatus() LoadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyStatus
}
