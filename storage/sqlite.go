// SQLite driver for the Store contract.
//
// Information Hiding:
// - Connection management hidden behind the Store interface
// - Schema details encapsulated here
// - Thread-safe via sql.DB's built-in connection pooling; each operation
//   runs as its own short-lived statement or transaction with no
//   cross-operation locking

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore implements Store using a SQLite database file.
// Message ids use AUTOINCREMENT, so they are strictly increasing and
// never reused, even after deletions.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// OpenSqliteInMemory creates an in-memory database (useful for testing).
func OpenSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Initialize creates the schema if it does not exist.
func (s *SqliteStore) Initialize(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			model TEXT
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			model TEXT,
			FOREIGN KEY (conversation_id) REFERENCES conversations (id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, timestamp);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation record.
func (s *SqliteStore) CreateConversation(ctx context.Context, id, title string, model *string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle(id)
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, title, created_at, updated_at, model) VALUES (?, ?, ?, ?, ?)",
		id, title, formatTime(now), formatTime(now), nullString(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return &Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Model:     model,
	}, nil
}

// GetConversation returns the conversation, or nil if unknown.
func (s *SqliteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at, model FROM conversations WHERE id = ?", id)

	conv, err := scanConversation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations ordered by updated_at descending.
// Non-positive limits yield an empty result, matching slice semantics in
// the file-backed drivers (SQLite itself treats a negative LIMIT as
// unlimited).
func (s *SqliteStore) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	if limit <= 0 || offset < 0 {
		return []Conversation{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at, model FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{} // Start with empty slice, not nil
	for rows.Next() {
		conv, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// AddMessage inserts the message and bumps the owning conversation's
// updated_at. Both writes share one transaction; the timestamp update
// silently affects zero rows when the conversation record is missing.
func (s *SqliteStore) AddMessage(ctx context.Context, msg Message) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after Commit
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, timestamp, model) VALUES (?, ?, ?, ?, ?)",
		msg.ConversationID, msg.Role, msg.Content, formatTime(msg.Timestamp), nullString(msg.Model))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		formatTime(time.Now().UTC()), msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	msg.ID = id
	return &msg, nil
}

// GetMessages returns all messages for a conversation ordered by timestamp.
func (s *SqliteStore) GetMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, timestamp, model FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{} // Start with empty slice, not nil
	for rows.Next() {
		var msg Message
		var ts string
		var model sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &ts, &model); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if msg.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("invalid message timestamp %q: %w", ts, err)
		}
		if model.Valid {
			msg.Model = &model.String
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// ClearConversation deletes all messages for the conversation.
func (s *SqliteStore) ClearConversation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

// DeleteConversation deletes the conversation record and its messages.
func (s *SqliteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// scanConversation scans one conversation row via the given Scan func.
func scanConversation(scan func(dest ...any) error) (*Conversation, error) {
	var conv Conversation
	var createdAt, updatedAt string
	var model sql.NullString

	if err := scan(&conv.ID, &conv.Title, &createdAt, &updatedAt, &model); err != nil {
		return nil, err
	}

	var err error
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	if model.Valid {
		conv.Model = &model.String
	}
	return &conv, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Verify SqliteStore implements Store
var _ Store = (*SqliteStore)(nil)
