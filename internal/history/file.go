// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/silohub/chat/internal/model"
	"github.com/silohub/chat/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps one JSON document per conversation in a directory.
//
// FileStore is safe for concurrent use within one process.
type FileStore struct {
	// BaseDir is the directory for storing conversations
	// Default: ~/.silochat/history/
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited)
	MaxConversations int

	mu sync.Mutex
}

// NewFileStore creates a store rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	return &FileStore{
		BaseDir:          baseDir,
		MaxConversations: 100,
	}, nil
}

// Ensure checks that the directory is writable.
func (s *FileStore) Ensure(ctx context.Context) (Health, error) {
	info, err := os.Stat(s.BaseDir)
	if err != nil || !info.IsDir() {
		return Health{Status: StatusInvalidDatabase}, nil
	}
	tmp, err := os.CreateTemp(s.BaseDir, ".write-check-*")
	if err != nil {
		return Health{Status: StatusInvalidDatabase}, nil
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return Health{Available: true, Status: StatusWorking}, nil
}

// List returns one page of conversations, most recent first.
func (s *FileStore) List(ctx context.Context, offset int) ([]*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*model.Conversation{}, nil
	}
	end := offset + DefaultPageSize
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Read returns the messages of a conversation.
func (s *FileStore) Read(ctx context.Context, conversationID string) ([]*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// Update writes the conversation document.
func (s *FileStore) Update(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation has no id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(conv); err != nil {
		return err
	}
	if s.MaxConversations > 0 {
		s.enforceLimit()
	}
	return nil
}

// Clear removes a conversation's messages but keeps the document.
func (s *FileStore) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(conversationID)
	if err != nil {
		return err
	}
	conv.ClearMessages()
	conv.UpdatedAt = time.Now().UTC()
	return s.save(conv)
}

// Delete removes a conversation document.
func (s *FileStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(conversationID)
}

// Feedback stamps a rating on the assistant message with messageID.
func (s *FileStore) Feedback(ctx context.Context, messageID string, fb model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	for _, conv := range all {
		changed := false
		for _, m := range conv.Messages {
			if m.ID == messageID && m.Role == model.RoleAssistant {
				m.Feedback = fb
				changed = true
			}
		}
		if changed {
			return s.save(conv)
		}
	}
	return ErrNotFound
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (s *FileStore) save(conv *model.Conversation) error {
	path, err := s.filePath(conv.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, data, 0600)
}

func (s *FileStore) load(id string) (*model.Conversation, error) {
	path, err := s.filePath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []*model.ChatMessage{}
	}
	return &conv, nil
}

func (s *FileStore) remove(id string) error {
	path, err := s.filePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// loadAll reads every document, most recently updated first. Corrupted files
// are skipped.
func (s *FileStore) loadAll() ([]*model.Conversation, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Conversation{}, nil
		}
		return nil, err
	}

	convs := make([]*model.Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		convs = append(convs, conv)
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

// enforceLimit removes the oldest conversations beyond MaxConversations.
func (s *FileStore) enforceLimit() {
	all, err := s.loadAll()
	if err != nil || len(all) <= s.MaxConversations {
		return
	}
	for _, conv := range all[s.MaxConversations:] {
		s.remove(conv.ID)
	}
}

// filePath returns the document path for id, rejecting ids that would
// escape BaseDir.
func (s *FileStore) filePath(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", ErrNotFound
	}
	return filepath.Join(s.BaseDir, id+".json"), nil
}
