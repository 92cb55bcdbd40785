// Ollama Runtime implementation against the native Ollama HTTP API.
//
// Information Hiding:
// - Endpoint layout (/api/chat, /api/tags, /api/pull, /api/generate)
// - NDJSON streaming protocol
// - Request/response format conversion

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaRuntime implements the Runtime interface against a local Ollama
// server's native API. Unlike the OpenAI-compatible surface, the native
// API supports model listing with digests, pulling, and single-shot
// generation.
type OllamaRuntime struct {
	baseURL string
	client  *http.Client
}

// NewOllamaRuntime creates a runtime for the Ollama server at baseURL
// (e.g. "http://localhost:11434").
func NewOllamaRuntime(baseURL string) *OllamaRuntime {
	return &OllamaRuntime{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			// Local model inference can be slow; pulls are unbounded and
			// rely on the request context instead.
			Timeout: 5 * time.Minute,
		},
	}
}

// Name returns the runtime name.
func (r *OllamaRuntime) Name() string {
	return "ollama"
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string      `json:"model"`
	Message ChatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Chat sends a non-streaming chat completion request.
func (r *OllamaRuntime) Chat(ctx context.Context, model string, messages []ChatMessage) (ChatResult, error) {
	body, err := r.post(ctx, "/api/chat", ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat completion failed: %w", err)
	}
	defer body.Close()

	var resp ollamaChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return ChatResult{}, fmt.Errorf("failed to decode chat response: %w", err)
	}

	return ChatResult{Content: resp.Message.Content, Model: resp.Model}, nil
}

// StreamChat streams a chat completion. The native API responds with one
// JSON object per line until a final object with done=true.
func (r *OllamaRuntime) StreamChat(ctx context.Context, model string, messages []ChatMessage, chunks chan<- string) error {
	body, err := r.post(ctx, "/api/chat", ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("stream creation failed: %w", err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp ollamaChatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if resp.Message.Content != "" {
			select {
			case chunks <- resp.Message.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if resp.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Size       int64  `json:"size"`
		Digest     string `json:"digest"`
		ModifiedAt string `json:"modified_at"`
	} `json:"models"`
}

// ListModels returns the locally available models via /api/tags.
func (r *OllamaRuntime) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	models := []ModelInfo{} // Start with empty slice, not nil
	for _, m := range tags.Models {
		models = append(models, ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			Digest:     m.Digest,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return models, nil
}

// Pull downloads a model via /api/pull, draining the progress stream
// until the server reports completion.
func (r *OllamaRuntime) Pull(ctx context.Context, model string) error {
	body, err := r.post(ctx, "/api/pull", map[string]any{"name": model})
	if err != nil {
		return fmt.Errorf("failed to pull model %q: %w", model, err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var progress struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &progress); err != nil {
			continue
		}
		if progress.Error != "" {
			return fmt.Errorf("pull of %q failed: %s", model, progress.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("pull stream read failed: %w", err)
	}
	return nil
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends a single-shot prompt via /api/generate, without chat
// history semantics.
func (r *OllamaRuntime) Generate(ctx context.Context, model, prompt string) (ChatResult, error) {
	body, err := r.post(ctx, "/api/generate", map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("generate failed: %w", err)
	}
	defer body.Close()

	var resp ollamaGenerateResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return ChatResult{}, fmt.Errorf("failed to decode generate response: %w", err)
	}

	return ChatResult{Content: resp.Response, Model: resp.Model}, nil
}

// post issues a JSON POST and returns the response body on 200.
func (r *OllamaRuntime) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

// Verify OllamaRuntime implements Runtime
var _ Runtime = (*OllamaRuntime)(nil)
