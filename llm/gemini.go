// Google Gemini Runtime implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - System instruction handling via config
// - Streaming via official SDK iterator

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiRuntime implements the Runtime interface for Google Gemini.
type GeminiRuntime struct {
	client  *genai.Client
	initErr error // Stores client initialization error for deferred reporting
}

// NewGeminiRuntime creates a new Gemini runtime.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiRuntime(apiKey string) *GeminiRuntime {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &GeminiRuntime{
			initErr: fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}
	return &GeminiRuntime{client: client}
}

// Name returns the runtime name.
func (r *GeminiRuntime) Name() string {
	return "gemini"
}

// Chat sends a chat completion request.
func (r *GeminiRuntime) Chat(ctx context.Context, model string, messages []ChatMessage) (ChatResult, error) {
	if r.initErr != nil {
		return ChatResult{}, r.initErr
	}

	contents, systemInstruction := convertToGeminiMessages(messages)

	config := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	response, err := r.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := response.Text()
	if content == "" {
		return ChatResult{}, fmt.Errorf("empty response from Gemini")
	}

	return ChatResult{Content: content, Model: model}, nil
}

// StreamChat streams a chat completion.
func (r *GeminiRuntime) StreamChat(ctx context.Context, model string, messages []ChatMessage, chunks chan<- string) error {
	if r.initErr != nil {
		return r.initErr
	}

	contents, systemInstruction := convertToGeminiMessages(messages)

	config := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	for response, err := range r.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		text := response.Text()
		if text != "" {
			select {
			case chunks <- text:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// ListModels returns a static list; the runtime targets known chat models.
func (r *GeminiRuntime) ListModels(_ context.Context) ([]ModelInfo, error) {
	return []ModelInfo{
		{Name: "gemini-3-pro"},
		{Name: "gemini-3-flash"},
		{Name: "gemini-2.0-flash"},
	}, nil
}

// Pull is not applicable to a hosted API.
func (r *GeminiRuntime) Pull(_ context.Context, _ string) error {
	return ErrPullUnsupported
}

// convertToGeminiMessages converts our ChatMessage to Gemini format.
// Extracts system message and returns it separately.
func convertToGeminiMessages(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemInstruction string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemInstruction = msg.Content
		case "user":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		}
	}

	return contents, systemInstruction
}

// Verify GeminiRuntime implements Runtime
var _ Runtime = (*GeminiRuntime)(nil)
