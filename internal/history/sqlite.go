// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/silohub/chat/internal/model"
)

// =============================================================================
// SCHEMA
// =============================================================================

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,  -- Unix milliseconds
    updated_at INTEGER NOT NULL
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,        -- JSON: string or array of parts
    date INTEGER NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    feedback TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (conversation_id, seq),
    FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_id ON messages(id);

CREATE TABLE IF NOT EXISTS message_feedback (
    message_id TEXT PRIMARY KEY,
    feedback TEXT NOT NULL,
    updated_at INTEGER NOT NULL
) WITHOUT ROWID;
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps history in a local SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	pageSize int
}

// OpenSQLite opens or creates the history database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, pageSize: DefaultPageSize}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Ensure pings the database.
func (s *SQLiteStore) Ensure(ctx context.Context) (Health, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return Health{Status: StatusInvalidDatabase}, nil
	}
	return Health{Available: true, Status: StatusWorking}, nil
}

// List returns one page of conversations without messages.
func (s *SQLiteStore) List(ctx context.Context, offset int) ([]*model.Conversation, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`, s.pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		var (
			conv             model.Conversation
			created, updated int64
		)
		if err := rows.Scan(&conv.ID, &conv.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.CreatedAt = fromMillis(created)
		conv.UpdatedAt = fromMillis(updated)
		conv.Messages = []*model.ChatMessage{}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

// Read returns the messages of a conversation in order.
func (s *SQLiteStore) Read(ctx context.Context, conversationID string) ([]*model.ChatMessage, error) {
	if !s.exists(ctx, conversationID) {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, date, context, feedback FROM messages
		 WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []*model.ChatMessage{}
	for rows.Next() {
		var (
			m        model.ChatMessage
			role     string
			content  string
			date     int64
			feedback string
		)
		if err := rows.Scan(&m.ID, &role, &content, &date, &m.Context, &feedback); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &m.Content); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", m.ID, err)
		}
		m.Role = model.Role(role)
		m.Date = fromMillis(date)
		m.Feedback = model.Feedback(feedback)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// Update replaces the stored conversation with conv.
func (s *SQLiteStore) Update(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation has no id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	updated := conv.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	created := conv.CreatedAt
	if created.IsZero() {
		created = updated
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		conv.ID, conv.Title, created.UnixMilli(), updated.UnixMilli()); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, seq, id, role, content, date, context, feedback)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range conv.Messages {
		if m == nil {
			continue
		}
		content, err := json.Marshal(m.Content)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, conv.ID, i, m.ID, string(m.Role), string(content),
			m.Date.UnixMilli(), m.Context, string(m.Feedback)); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// Clear removes a conversation's messages.
func (s *SQLiteStore) Clear(ctx context.Context, conversationID string) error {
	if !s.exists(ctx, conversationID) {
		return ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), conversationID)
	return err
}

// Delete removes a conversation and its messages.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Feedback records a rating and stamps it on the stored assistant message.
func (s *SQLiteStore) Feedback(ctx context.Context, messageID string, fb model.Feedback) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO message_feedback (message_id, feedback, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET feedback = excluded.feedback, updated_at = excluded.updated_at`,
		messageID, string(fb), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET feedback = ? WHERE id = ? AND role = ?`,
		string(fb), messageID, string(model.RoleAssistant))
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) exists(ctx context.Context, id string) bool {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	return err == nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
