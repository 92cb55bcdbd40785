// OpenAI-compatible Runtime implementation using go-openai library.
//
// Information Hiding:
// - Works against any OpenAI-compatible endpoint via base URL override,
//   including Ollama's /v1 compatibility surface
// - Request/response format conversion
// - Streaming via go-openai library

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIRuntime implements the Runtime interface for OpenAI-compatible
// endpoints. Model pulling is not part of the compatibility surface.
type OpenAIRuntime struct {
	client *openai.Client
	name   string
}

// NewOpenAIRuntime creates a runtime for an OpenAI-compatible endpoint.
// baseURL should include the /v1 prefix; an empty baseURL targets the
// OpenAI API itself.
func NewOpenAIRuntime(apiKey, baseURL string) *OpenAIRuntime {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIRuntime{
		client: openai.NewClientWithConfig(config),
		name:   "openai",
	}
}

// Name returns the runtime name.
func (r *OpenAIRuntime) Name() string {
	return r.name
}

// Chat sends a chat completion request.
func (r *OpenAIRuntime) Chat(ctx context.Context, model string, messages []ChatMessage) (ChatResult, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(messages),
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return ChatResult{Content: content, Model: resp.Model}, nil
}

// StreamChat streams a chat completion.
func (r *OpenAIRuntime) StreamChat(ctx context.Context, model string, messages []ChatMessage, chunks chan<- string) error {
	stream, err := r.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream recv failed: %w", err)
		}

		if len(response.Choices) > 0 {
			content := response.Choices[0].Delta.Content
			if content != "" {
				select {
				case chunks <- content:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// ListModels returns the models the endpoint advertises.
func (r *OpenAIRuntime) ListModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := r.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := []ModelInfo{} // Start with empty slice, not nil
	for _, m := range list.Models {
		models = append(models, ModelInfo{Name: m.ID})
	}
	return models, nil
}

// Pull is not part of the OpenAI compatibility surface.
func (r *OpenAIRuntime) Pull(_ context.Context, _ string) error {
	return ErrPullUnsupported
}

// convertMessages converts our ChatMessage to openai.ChatCompletionMessage
func convertMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		result[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

// Verify OpenAIRuntime implements Runtime
var _ Runtime = (*OpenAIRuntime)(nil)
