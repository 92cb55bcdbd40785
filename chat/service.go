// Package chat orchestrates a conversation turn: history retrieval,
// persistence of both sides of the exchange, and the runtime call.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/converse/llm"
	"github.com/richinex/converse/storage"
)

// ErrStreamingNotSupported is returned when a caller requests a
// streaming turn through the synchronous API.
var ErrStreamingNotSupported = errors.New("streaming responses are not supported")

// Gateway is the slice of the LLM gateway the orchestrator needs.
type Gateway interface {
	Chat(ctx context.Context, model string, messages []llm.ChatMessage) (llm.ChatResult, error)
	EnhancedChat(ctx context.Context, model string, messages []llm.ChatMessage, enableSearch bool) (llm.ChatResult, error)
}

// Request is one inbound user turn.
type Request struct {
	Message        string
	ConversationID string
	Model          string
	Stream         bool
	EnableSearch   bool
}

// Reply is the completed assistant turn.
type Reply struct {
	Content        string
	ConversationID string
	Model          string
	Timestamp      time.Time
}

// Service runs conversation turns against a store and a gateway.
type Service struct {
	store        storage.Store
	gateway      Gateway
	defaultModel string
	logger       *zap.Logger
}

// NewService creates a chat service.
func NewService(store storage.Store, gateway Gateway, defaultModel string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		gateway:      gateway,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Respond runs one full conversation turn.
//
// The user message is persisted before the runtime call and is not
// rolled back on failure: a failed turn leaves the user's input durable
// with no assistant reply. Streaming requests are rejected after that
// persist, so the message survives the rejection.
func (s *Service) Respond(ctx context.Context, req Request) (*Reply, error) {
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv == nil {
		if _, err := s.store.CreateConversation(ctx, conversationID, GenerateTitle(req.Message), &model); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		s.logger.Info("created conversation",
			zap.String("conversation_id", conversationID),
			zap.String("model", model))
	}

	history, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	llmMessages := make([]llm.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		llmMessages = append(llmMessages, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	llmMessages = append(llmMessages, llm.UserMessage(req.Message))

	// Both sides of the turn record the resolved model.
	if _, err := s.store.AddMessage(ctx, storage.Message{
		ConversationID: conversationID,
		Role:           storage.RoleUser,
		Content:        req.Message,
		Timestamp:      time.Now().UTC(),
		Model:          &model,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	if req.Stream {
		return nil, ErrStreamingNotSupported
	}

	var result llm.ChatResult
	if req.EnableSearch {
		result, err = s.gateway.EnhancedChat(ctx, model, llmMessages, true)
	} else {
		result, err = s.gateway.Chat(ctx, model, llmMessages)
	}
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	now := time.Now().UTC()
	if _, err := s.store.AddMessage(ctx, storage.Message{
		ConversationID: conversationID,
		Role:           storage.RoleAssistant,
		Content:        result.Content,
		Timestamp:      now,
		Model:          &model,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	return &Reply{
		Content:        result.Content,
		ConversationID: conversationID,
		Model:          model,
		Timestamp:      now,
	}, nil
}
