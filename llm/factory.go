// Runtime factory - maps configured runtime types to implementations.

package llm

import (
	"fmt"
	"strings"
)

// RuntimeType represents supported chat runtimes.
type RuntimeType int

const (
	// RuntimeOllama is the native Ollama API runtime (default).
	RuntimeOllama RuntimeType = iota
	// RuntimeOpenAI is any OpenAI-compatible endpoint.
	RuntimeOpenAI
	// RuntimeAnthropic is the Anthropic provider (Claude models).
	RuntimeAnthropic
	// RuntimeGemini is the Google Gemini provider.
	RuntimeGemini
)

// String returns the string representation of the runtime type.
func (t RuntimeType) String() string {
	switch t {
	case RuntimeOllama:
		return "ollama"
	case RuntimeOpenAI:
		return "openai"
	case RuntimeAnthropic:
		return "anthropic"
	case RuntimeGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// ParseRuntimeType parses a runtime from string (case-insensitive).
func ParseRuntimeType(s string) (RuntimeType, error) {
	switch strings.ToLower(s) {
	case "", "ollama":
		return RuntimeOllama, nil
	case "openai", "openai-compatible":
		return RuntimeOpenAI, nil
	case "anthropic", "claude":
		return RuntimeAnthropic, nil
	case "gemini", "google":
		return RuntimeGemini, nil
	default:
		return 0, fmt.Errorf("unknown runtime: %s", s)
	}
}

// RuntimeConfig carries runtime construction parameters.
type RuntimeConfig struct {
	Type RuntimeType

	// BaseURL is the server address for the Ollama and OpenAI-compatible
	// runtimes. For OpenAI-compatible endpoints it should include /v1.
	BaseURL string

	// APIKey authenticates hosted runtimes. Ollama ignores it.
	APIKey string
}

// NewRuntime constructs the configured runtime.
func NewRuntime(cfg RuntimeConfig) (Runtime, error) {
	switch cfg.Type {
	case RuntimeOllama:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("ollama runtime requires a base URL")
		}
		return NewOllamaRuntime(cfg.BaseURL), nil
	case RuntimeOpenAI:
		return NewOpenAIRuntime(cfg.APIKey, cfg.BaseURL), nil
	case RuntimeAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic runtime requires an API key")
		}
		return NewAnthropicRuntime(cfg.APIKey), nil
	case RuntimeGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini runtime requires an API key")
		}
		return NewGeminiRuntime(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown runtime type: %v", cfg.Type)
	}
}
