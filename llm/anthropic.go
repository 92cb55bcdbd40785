// Anthropic Runtime implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Streaming via official SDK

package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicRuntime implements the Runtime interface for Anthropic Claude.
type AnthropicRuntime struct {
	client anthropic.Client
}

// NewAnthropicRuntime creates a new Anthropic runtime.
func NewAnthropicRuntime(apiKey string) *AnthropicRuntime {
	return &AnthropicRuntime{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the runtime name.
func (r *AnthropicRuntime) Name() string {
	return "anthropic"
}

// Chat sends a chat completion request.
func (r *AnthropicRuntime) Chat(ctx context.Context, model string, messages []ChatMessage) (ChatResult, error) {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  anthropicMessages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	message, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}

	return ChatResult{Content: content, Model: string(message.Model)}, nil
}

// StreamChat streams a chat completion.
func (r *AnthropicRuntime) StreamChat(ctx context.Context, model string, messages []ChatMessage, chunks chan<- string) error {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  anthropicMessages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	stream := r.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					select {
					case chunks <- deltaVariant.Text:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		}
	}

	if stream.Err() != nil {
		return fmt.Errorf("stream error: %w", stream.Err())
	}
	return nil
}

// ListModels returns a static list; Anthropic has no listing endpoint in
// the surface this runtime uses.
func (r *AnthropicRuntime) ListModels(_ context.Context) ([]ModelInfo, error) {
	return []ModelInfo{
		{Name: "claude-opus-4-5-20251101"},
		{Name: "claude-sonnet-4-20250514"},
		{Name: "claude-haiku-4-20250514"},
	}, nil
}

// Pull is not applicable to a hosted API.
func (r *AnthropicRuntime) Pull(_ context.Context, _ string) error {
	return ErrPullUnsupported
}

// convertToAnthropicMessages converts our ChatMessage to Anthropic format.
// Extracts system message and returns it separately.
func convertToAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "assistant":
			anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return anthropicMessages, systemPrompt
}

// Verify AnthropicRuntime implements Runtime
var _ Runtime = (*AnthropicRuntime)(nil)
