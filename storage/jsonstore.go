// JSON document driver for the Store contract.
//
// The whole dataset lives in two keyed files: conversations.json maps
// conversation id to its record, messages.json maps conversation id to
// its message list. Every mutation rewrites the affected file in full,
// so a single mutex serializes all mutating operations to prevent lost
// updates from concurrent read-modify-write cycles. Reads do not take
// the lock and may observe a stale but consistent snapshot.

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// JSONStore implements Store over two JSON files in a data directory.
//
// Message ids come from an in-memory counter seeded with the maximum
// persisted id at Initialize, so ids are strictly increasing and never
// reused for the lifetime of the store handle.
type JSONStore struct {
	dir       string
	convPath  string
	msgPath   string
	mu        sync.Mutex // serializes all mutations
	nextID    int64
	seededIDs bool
}

// jsonConversation is the persisted conversation record.
type jsonConversation struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Model     *string `json:"model"`
}

// jsonMessage is the persisted message record.
type jsonMessage struct {
	ID             int64   `json:"id"`
	ConversationID string  `json:"conversation_id"`
	Role           string  `json:"role"`
	Content        string  `json:"content"`
	Timestamp      string  `json:"timestamp"`
	Model          *string `json:"model"`
}

// NewJSONStore creates a JSON store rooted at dir.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{
		dir:      dir,
		convPath: filepath.Join(dir, "conversations.json"),
		msgPath:  filepath.Join(dir, "messages.json"),
	}
}

// Initialize creates the data directory and empty files if absent, and
// seeds the message id counter from the persisted data.
func (s *JSONStore) Initialize(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	for _, path := range []string{s.convPath, s.msgPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := writeJSONFile(path, map[string]any{}); err != nil {
				return err
			}
		} else if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seededIDs {
		messages, err := s.readMessages()
		if err != nil {
			return err
		}
		var maxID int64
		for _, msgs := range messages {
			for _, m := range msgs {
				if m.ID > maxID {
					maxID = m.ID
				}
			}
		}
		s.nextID = maxID
		s.seededIDs = true
	}
	return nil
}

// Close releases no resources for file-backed storage.
func (s *JSONStore) Close() error {
	return nil
}

// CreateConversation writes a new conversation record.
func (s *JSONStore) CreateConversation(_ context.Context, id, title string, model *string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle(id)
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := s.readConversations()
	if err != nil {
		return nil, err
	}

	conversations[id] = jsonConversation{
		ID:        id,
		Title:     title,
		CreatedAt: formatTime(now),
		UpdatedAt: formatTime(now),
		Model:     model,
	}

	if err := writeJSONFile(s.convPath, conversations); err != nil {
		return nil, err
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
func (s *JSONStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	conversations, err := s.readConversations()
	if err != nil {
		return nil, err
	}

	rec, ok := conversations[id]
	if !ok {
		return nil, nil
	}
	return rec.toConversation()
}

// ListConversations returns conversations ordered by updated_at descending.
func (s *JSONStore) ListConversations(_ context.Context, limit, offset int) ([]Conversation, error) {
	records, err := s.readConversations()
	if err != nil {
		return nil, err
	}

	all := make([]Conversation, 0, len(records))
	for _, rec := range records {
		conv, err := rec.toConversation()
		if err != nil {
			return nil, err
		}
		all = append(all, *conv)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	return paginate(all, limit, offset), nil
}

// AddMessage appends the message to its conversation's list and bumps the
// conversation's updated_at when the record exists.
func (s *JSONStore) AddMessage(_ context.Context, msg Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.readMessages()
	if err != nil {
		return nil, err
	}
	conversations, err := s.readConversations()
	if err != nil {
		return nil, err
	}

	s.nextID++
	msg.ID = s.nextID

	messages[msg.ConversationID] = append(messages[msg.ConversationID], jsonMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		Timestamp:      formatTime(msg.Timestamp),
		Model:          msg.Model,
	})

	if err := writeJSONFile(s.msgPath, messages); err != nil {
		return nil, err
	}

	// The timestamp bump is skipped, not an error, when the conversation
	// record does not exist.
	if rec, ok := conversations[msg.ConversationID]; ok {
		rec.UpdatedAt = formatTime(time.Now().UTC())
		conversations[msg.ConversationID] = rec
		if err := writeJSONFile(s.convPath, conversations); err != nil {
			return nil, err
		}
	}

	return &msg, nil
}

// GetMessages returns a conversation's messages ordered by timestamp.
func (s *JSONStore) GetMessages(_ context.Context, conversationID string) ([]Message, error) {
	records, err := s.readMessages()
	if err != nil {
		return nil, err
	}

	messages := []Message{} // Start with empty slice, not nil
	for _, rec := range records[conversationID] {
		ts, err := parseTime(rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid message timestamp %q: %w", rec.Timestamp, err)
		}
		messages = append(messages, Message{
			ID:             rec.ID,
			ConversationID: rec.ConversationID,
			Role:           rec.Role,
			Content:        rec.Content,
			Timestamp:      ts,
			Model:          rec.Model,
		})
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	return messages, nil
}

// ClearConversation drops the conversation's message list.
func (s *JSONStore) ClearConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.readMessages()
	if err != nil {
		return err
	}

	if _, ok := messages[id]; ok {
		messages[id] = []jsonMessage{}
		if err := writeJSONFile(s.msgPath, messages); err != nil {
			return err
		}
	}
	return nil
}

// DeleteConversation removes the conversation record and its messages.
func (s *JSONStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := s.readConversations()
	if err != nil {
		return err
	}
	messages, err := s.readMessages()
	if err != nil {
		return err
	}

	delete(conversations, id)
	delete(messages, id)

	if err := writeJSONFile(s.convPath, conversations); err != nil {
		return err
	}
	return writeJSONFile(s.msgPath, messages)
}

func (s *JSONStore) readConversations() (map[string]jsonConversation, error) {
	out := map[string]jsonConversation{}
	if err := readJSONFile(s.convPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *JSONStore) readMessages() (map[string][]jsonMessage, error) {
	out := map[string][]jsonMessage{}
	if err := readJSONFile(s.msgPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (rec jsonConversation) toConversation() (*Conversation, error) {
	createdAt, err := parseTime(rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", rec.CreatedAt, err)
	}
	updatedAt, err := parseTime(rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", rec.UpdatedAt, err)
	}
	return &Conversation{
		ID:        rec.ID,
		Title:     rec.Title,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Model:     rec.Model,
	}, nil
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeJSONFile(path string, data any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return atomicWrite(path, encoded)
}

// atomicWrite replaces the file at path via a temp file and rename, so
// lock-free readers always open either the old or the new contents,
// never a truncated file mid-rewrite.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// paginate slices the sorted set; offsets past the end and non-positive
// limits yield an empty slice rather than an error, the same as a zero
// LIMIT in the relational driver.
func paginate[T any](items []T, limit, offset int) []T {
	if limit <= 0 || offset < 0 || offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// Verify JSONStore implements Store
var _ Store = (*JSONStore)(nil)
