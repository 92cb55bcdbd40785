// Package storage persists conversations and their messages behind a
// backend-agnostic Store interface.
//
// Information Hiding:
// - Backend choice (SQLite, JSON files, CSV files) hidden behind Store
// - Id assignment and timestamp encoding are driver concerns
// - Callers depend only on Conversation and Message records
package storage

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds. The fixed width
// keeps lexicographic order equal to chronological order for UTC values,
// which the drivers rely on when sorting persisted strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Conversation is a persisted conversation record.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Model     *string   `json:"model"`
}

// Message is a single turn within a conversation. ID is assigned by the
// backend on insert and is strictly increasing per store.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Model          *string   `json:"model"`
}

// Store is the persistence contract shared by all backends.
//
// GetConversation returns (nil, nil) for an unknown id. GetMessages and
// ListConversations return empty non-nil slices when nothing matches.
// ClearConversation and DeleteConversation succeed for unknown ids.
type Store interface {
	// Initialize prepares the backend (schema, files, directories).
	// Safe to call more than once.
	Initialize(ctx context.Context) error

	// CreateConversation persists a new conversation. An empty title is
	// replaced with DefaultTitle(id).
	CreateConversation(ctx context.Context, id, title string, model *string) (*Conversation, error)

	// GetConversation looks up a conversation by id.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns conversations ordered by updated_at
	// descending, windowed by limit and offset.
	ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error)

	// AddMessage persists a message, assigns its id, and bumps the owning
	// conversation's updated_at when that record exists.
	AddMessage(ctx context.Context, msg Message) (*Message, error)

	// GetMessages returns a conversation's messages ordered by timestamp
	// ascending.
	GetMessages(ctx context.Context, conversationID string) ([]Message, error)

	// ClearConversation removes a conversation's messages but keeps the
	// conversation record.
	ClearConversation(ctx context.Context, id string) error

	// DeleteConversation removes the conversation record and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

// DefaultTitle derives a placeholder title from a conversation id.
func DefaultTitle(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "Conversation " + id
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
