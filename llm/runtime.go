// Runtime interface - the abstract interface for chat runtimes.
// Each runtime implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Runtime-specific error handling

package llm

import (
	"context"
	"errors"
)

// ErrPullUnsupported is returned by runtimes that cannot download models.
var ErrPullUnsupported = errors.New("model pulling not supported by this runtime")

// Runtime defines the abstract interface for chat runtimes.
// Implementations hide runtime-specific details while exposing a
// consistent interface for chat completions and model management.
type Runtime interface {
	// Name returns the runtime name (for logging/debugging).
	Name() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, model string, messages []ChatMessage) (ChatResult, error)

	// StreamChat streams a chat completion, sending chunks to the provided
	// channel. The channel is not closed by the runtime.
	StreamChat(ctx context.Context, model string, messages []ChatMessage, chunks chan<- string) error

	// ListModels returns the models available on the runtime.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Pull downloads a model to the runtime. Runtimes without a model
	// registry return ErrPullUnsupported.
	Pull(ctx context.Context, model string) error
}
