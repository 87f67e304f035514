// Package store provides a local SQLite implementation of the chat
// persistence port, used for offline development and tests.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lianxi-ai/tutorcore/domain"
	"github.com/lianxi-ai/tutorcore/pipeline"
)

// SQLiteStore persists chats in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ pipeline.ChatStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection so the schema survives across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS chats (
		chat_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		messages TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	return err
}

// SaveChat upserts the full session under its id.
func (s *SQLiteStore) SaveChat(ctx context.Context, id string, messages []domain.Message, title string) (*domain.Session, error) {
	encoded, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `INSERT INTO chats (chat_id, title, messages, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET title = excluded.title, messages = excluded.messages, updated_at = excluded.updated_at`,
		id, title, string(encoded), now)
	if err != nil {
		return nil, fmt.Errorf("failed to save chat: %w", err)
	}

	return &domain.Session{ID: id, Title: title, Messages: messages, UpdatedAt: now}, nil
}

// DeleteChat removes a chat by id. Deleting an unknown id is not an error.
func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// RenameChat updates only the title.
func (s *SQLiteStore) RenameChat(ctx context.Context, id, title string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE chats SET title = ?, updated_at = ? WHERE chat_id = ?`,
		title, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to rename chat: %w", err)
	}
	return nil
}

// ListChats returns all chats, newest first.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, title, messages, updated_at FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		var encoded string
		if err := rows.Scan(&sess.ID, &sess.Title, &encoded, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &sess.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages for chat %s: %w", sess.ID, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
