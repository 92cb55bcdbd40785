// CSV tabular driver for the Store contract.
//
// Two flat files with header rows: conversations.csv and messages.csv.
// Mutations rewrite the affected file in full under the same single-mutex
// discipline as the JSON driver; reads are lock-free. A nil model is
// stored as the empty string and read back as nil.

package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

var (
	conversationHeader = []string{"id", "title", "created_at", "updated_at", "model"}
	messageHeader      = []string{"id", "conversation_id", "role", "content", "timestamp", "model"}
)

// CSVStore implements Store over two CSV files in a data directory.
//
// Message ids come from an in-memory counter seeded with the maximum
// persisted id at Initialize, matching the JSON driver.
type CSVStore struct {
	dir       string
	convPath  string
	msgPath   string
	mu        sync.Mutex // serializes all mutations
	nextID    int64
	seededIDs bool
}

// NewCSVStore creates a CSV store rooted at dir.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{
		dir:      dir,
		convPath: filepath.Join(dir, "conversations.csv"),
		msgPath:  filepath.Join(dir, "messages.csv"),
	}
}

// Initialize creates the data directory and header-only files if absent,
// and seeds the message id counter from the persisted data.
func (s *CSVStore) Initialize(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	for path, header := range map[string][]string{
		s.convPath: conversationHeader,
		s.msgPath:  messageHeader,
	} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := writeCSVFile(path, header, nil); err != nil {
				return err
			}
		} else if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seededIDs {
		messages, err := s.readAllMessages()
		if err != nil {
			return err
		}
		var maxID int64
		for _, m := range messages {
			if m.ID > maxID {
				maxID = m.ID
			}
		}
		s.nextID = maxID
		s.seededIDs = true
	}
	return nil
}

// Close releases no resources for file-backed storage.
func (s *CSVStore) Close() error {
	return nil
}

// CreateConversation appends a conversation row.
func (s *CSVStore) CreateConversation(_ context.Context, id, title string, model *string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle(id)
	}
	now := time.Now().UTC()
	conv := Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Model:     model,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := s.readAllConversations()
	if err != nil {
		return nil, err
	}
	conversations = append(conversations, conv)

	if err := s.writeConversations(conversations); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation returns the conversation, or nil if unknown.
func (s *CSVStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	conversations, err := s.readAllConversations()
	if err != nil {
		return nil, err
	}
	for i := range conversations {
		if conversations[i].ID == id {
			return &conversations[i], nil
		}
	}
	return nil, nil
}

// ListConversations returns conversations ordered by updated_at descending.
func (s *CSVStore) ListConversations(_ context.Context, limit, offset int) ([]Conversation, error) {
	conversations, err := s.readAllConversations()
	if err != nil {
		return nil, err
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	return paginate(conversations, limit, offset), nil
}

// AddMessage appends a message row and rewrites the owning conversation's
// updated_at column when the record exists.
func (s *CSVStore) AddMessage(_ context.Context, msg Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.readAllMessages()
	if err != nil {
		return nil, err
	}

	s.nextID++
	msg.ID = s.nextID
	messages = append(messages, msg)

	if err := s.writeMessages(messages); err != nil {
		return nil, err
	}

	conversations, err := s.readAllConversations()
	if err != nil {
		return nil, err
	}
	for i := range conversations {
		if conversations[i].ID == msg.ConversationID {
			conversations[i].UpdatedAt = time.Now().UTC()
			if err := s.writeConversations(conversations); err != nil {
				return nil, err
			}
			break
		}
	}

	return &msg, nil
}

// GetMessages returns a conversation's messages ordered by timestamp.
func (s *CSVStore) GetMessages(_ context.Context, conversationID string) ([]Message, error) {
	all, err := s.readAllMessages()
	if err != nil {
		return nil, err
	}

	messages := []Message{} // Start with empty slice, not nil
	for _, m := range all {
		if m.ConversationID == conversationID {
			messages = append(messages, m)
		}
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	return messages, nil
}

// ClearConversation removes the conversation's message rows.
func (s *CSVStore) ClearConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.readAllMessages()
	if err != nil {
		return err
	}

	kept := messages[:0]
	for _, m := range messages {
		if m.ConversationID != id {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(messages) {
		return nil
	}
	return s.writeMessages(kept)
}

// DeleteConversation removes the conversation row and its message rows.
func (s *CSVStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, err := s.readAllConversations()
	if err != nil {
		return err
	}
	messages, err := s.readAllMessages()
	if err != nil {
		return err
	}

	keptConvs := conversations[:0]
	for _, c := range conversations {
		if c.ID != id {
			keptConvs = append(keptConvs, c)
		}
	}
	keptMsgs := messages[:0]
	for _, m := range messages {
		if m.ConversationID != id {
			keptMsgs = append(keptMsgs, m)
		}
	}

	if err := s.writeConversations(keptConvs); err != nil {
		return err
	}
	return s.writeMessages(keptMsgs)
}

func (s *CSVStore) readAllConversations() ([]Conversation, error) {
	rows, err := readCSVFile(s.convPath, len(conversationHeader))
	if err != nil {
		return nil, err
	}

	conversations := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		createdAt, err := parseTime(row[2])
		if err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", row[2], err)
		}
		updatedAt, err := parseTime(row[3])
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at %q: %w", row[3], err)
		}
		conversations = append(conversations, Conversation{
			ID:        row[0],
			Title:     row[1],
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
			Model:     optionalField(row[4]),
		})
	}
	return conversations, nil
}

func (s *CSVStore) writeConversations(conversations []Conversation) error {
	rows := make([][]string, 0, len(conversations))
	for _, c := range conversations {
		rows = append(rows, []string{
			c.ID,
			c.Title,
			formatTime(c.CreatedAt),
			formatTime(c.UpdatedAt),
			fieldOrEmpty(c.Model),
		})
	}
	return writeCSVFile(s.convPath, conversationHeader, rows)
}

func (s *CSVStore) readAllMessages() ([]Message, error) {
	rows, err := readCSVFile(s.msgPath, len(messageHeader))
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid message id %q: %w", row[0], err)
		}
		ts, err := parseTime(row[4])
		if err != nil {
			return nil, fmt.Errorf("invalid message timestamp %q: %w", row[4], err)
		}
		messages = append(messages, Message{
			ID:             id,
			ConversationID: row[1],
			Role:           row[2],
			Content:        row[3],
			Timestamp:      ts,
			Model:          optionalField(row[5]),
		})
	}
	return messages, nil
}

func (s *CSVStore) writeMessages(messages []Message) error {
	rows := make([][]string, 0, len(messages))
	for _, m := range messages {
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10),
			m.ConversationID,
			m.Role,
			m.Content,
			formatTime(m.Timestamp),
			fieldOrEmpty(m.Model),
		})
	}
	return writeCSVFile(s.msgPath, messageHeader, rows)
}

// readCSVFile returns the data rows (header skipped). Rows with the wrong
// field count surface as errors from the csv reader.
func readCSVFile(path string, fields int) ([][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}

// writeCSVFile serializes header and rows in memory, then replaces the
// file atomically so lock-free readers never see a partial rewrite.
func writeCSVFile(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return atomicWrite(path, buf.Bytes())
}

func optionalField(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func fieldOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Verify CSVStore implements Store
var _ Store = (*CSVStore)(nil)
