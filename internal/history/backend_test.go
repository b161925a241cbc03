// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silohub/chat/internal/model"
)

// exerciseStore runs the behaviour every local backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	h, err := s.Ensure(ctx)
	require.NoError(t, err)
	assert.True(t, h.Available)
	assert.Equal(t, StatusWorking, h.Status)

	older := sampleConversation("older")
	older.UpdatedAt = time.Now().Add(-time.Hour).UTC()
	require.NoError(t, s.Update(ctx, older))

	newer := model.NewConversation("newer", "Images")
	newer.AddMessage(
		model.NewUserMessage(model.Parts(model.TextPart("look"), model.ImagePart("data:image/png;base64,AA=="))),
		&model.ChatMessage{ID: "frag-1", Role: model.RoleTool, Content: model.Text(`{"citations":[]}`), Date: time.Now().UTC()},
		&model.ChatMessage{ID: "frag-1", Role: model.RoleAssistant, Content: model.Text("A cat."), Date: time.Now().UTC()},
	)
	require.NoError(t, s.Update(ctx, newer))

	// List is newest first and carries titles.
	convs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "newer", convs[0].ID)
	assert.Equal(t, "Images", convs[0].Title)
	assert.Equal(t, "older", convs[1].ID)

	// Read preserves order, roles and multi-part content.
	msgs, err := s.Read(ctx, "newer")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.True(t, msgs[0].Content.IsMultipart())
	assert.Equal(t, []string{"data:image/png;base64,AA=="}, msgs[0].Content.Images())
	assert.Equal(t, model.RoleTool, msgs[1].Role)
	assert.Equal(t, "A cat.", msgs[2].Text())

	// Update replaces messages.
	newer.AddMessage(model.NewErrorMessage("oops"))
	require.NoError(t, s.Update(ctx, newer))
	msgs, err = s.Read(ctx, "newer")
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	// Feedback lands on the assistant message only.
	require.NoError(t, s.Feedback(ctx, "frag-1", model.FeedbackNegative))
	msgs, err = s.Read(ctx, "newer")
	require.NoError(t, err)
	assert.Equal(t, model.Feedback(""), msgs[1].Feedback)
	assert.Equal(t, model.FeedbackNegative, msgs[2].Feedback)

	// Clear keeps the conversation.
	require.NoError(t, s.Clear(ctx, "older"))
	msgs, err = s.Read(ctx, "older")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Delete removes it.
	require.NoError(t, s.Delete(ctx, "older"))
	_, err = s.Read(ctx, "older")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "older"), ErrNotFound)
	assert.ErrorIs(t, s.Clear(ctx, "older"), ErrNotFound)

	convs, err = s.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

// =============================================================================
// SQLITE STORE TESTS
// =============================================================================

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())
	exerciseStore(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Update(context.Background(), sampleConversation("c1")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.Read(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("")
	assert.Error(t, err)
}

// =============================================================================
// FILE STORE TESTS
// =============================================================================

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 100, s.MaxConversations)
	exerciseStore(t, s)
}

func TestFileStore_EnforceLimit(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	s.MaxConversations = 2

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"one", "two", "three"} {
		conv := sampleConversation(id)
		conv.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Update(ctx, conv))
	}

	convs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "three", convs[0].ID)
	assert.Equal(t, "two", convs[1].ID)
}

func TestFileStore_SkipsCorruptedAndRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0600))
	require.NoError(t, s.Update(context.Background(), sampleConversation("good")))

	convs, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "good", convs[0].ID)

	_, err = s.Read(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, s.Update(context.Background(), model.NewConversation("../escape", "")))
}

func TestFileStore_FeedbackUnknownMessage(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Feedback(context.Background(), "nope", model.FeedbackPositive), ErrNotFound)
}
