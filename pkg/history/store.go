package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/quillchat/quill/pkg/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	tool_calls      TEXT NOT NULL DEFAULT '',
	tool_call_id    TEXT NOT NULL DEFAULT '',
	tool_name       TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, position);
`

// Store persists conversations in a local SQLite database
type Store struct {
	db *sql.DB
}

// Open creates or opens the conversation database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConversation writes the conversation and its full message list in one
// transaction, replacing any previous snapshot. A conversation without an id
// is assigned one.
func (s *Store) SaveConversation(conv chat.Conversation) (chat.Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return conv, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, provider, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			provider = excluded.provider,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.Provider, conv.Model, now, now)
	if err != nil {
		return conv, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return conv, fmt.Errorf("failed to clear messages: %w", err)
	}

	for i, msg := range conv.Messages {
		toolCalls := ""
		if len(msg.ToolCalls) > 0 {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return conv, fmt.Errorf("failed to encode tool calls: %w", err)
			}
			toolCalls = string(encoded)
		}

		createdAt := msg.Timestamp
		if createdAt.IsZero() {
			createdAt = now
		}

		_, err := tx.Exec(`
			INSERT INTO messages (conversation_id, position, role, content, tool_calls, tool_call_id, tool_name, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			conv.ID, i, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.ToolName, createdAt)
		if err != nil {
			return conv, fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return conv, fmt.Errorf("failed to commit: %w", err)
	}
	return conv, nil
}

// LoadConversation reads a conversation and its messages by id
func (s *Store) LoadConversation(id string) (chat.Conversation, error) {
	var conv chat.Conversation
	err := s.db.QueryRow(
		"SELECT id, title, provider, model FROM conversations WHERE id = ?", id).
		Scan(&conv.ID, &conv.Title, &conv.Provider, &conv.Model)
	if err == sql.ErrNoRows {
		return conv, fmt.Errorf("conversation %s not found", id)
	}
	if err != nil {
		return conv, fmt.Errorf("failed to load conversation: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT role, content, tool_calls, tool_call_id, tool_name, created_at
		FROM messages WHERE conversation_id = ? ORDER BY position`, id)
	if err != nil {
		return conv, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg       chat.Message
			toolCalls string
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &msg.ToolCallID, &msg.ToolName, &msg.Timestamp); err != nil {
			return conv, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return conv, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, rows.Err()
}

// ConversationSummary is a listing row without message bodies
type ConversationSummary struct {
	ID        string
	Title     string
	Provider  string
	Model     string
	UpdatedAt time.Time
	Messages  int
}

// ListConversations returns summaries ordered by most recent activity
func (s *Store) ListConversations() ([]ConversationSummary, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.title, c.provider, c.model, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var result []ConversationSummary
	for rows.Next() {
		var row ConversationSummary
		if err := rows.Scan(&row.ID, &row.Title, &row.Provider, &row.Model, &row.UpdatedAt, &row.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// RenameConversation sets the conversation title
func (s *Store) RenameConversation(id, title string) error {
	result, err := s.db.Exec(
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s not found", id)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages
func (s *Store) DeleteConversation(id string) error {
	_, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
