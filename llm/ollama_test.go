package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newOllamaTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Stream {
			for _, chunk := range []string{"Hello", ", ", "world"} {
				resp := ollamaChatResponse{Model: req.Model, Message: AssistantMessage(chunk)}
				_ = json.NewEncoder(w).Encode(resp)
			}
			_ = json.NewEncoder(w).Encode(ollamaChatResponse{Model: req.Model, Done: true})
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:   req.Model,
			Message: AssistantMessage("Hello from " + req.Model),
			Done:    true,
		})
	})

	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"phi3:mini","size":2300000000,"digest":"abc123"},{"name":"llama3","size":4700000000,"digest":"def456"}]}`)
	})

	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    req.Model,
			Response: "generated: " + req.Prompt,
			Done:     true,
		})
	})

	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"status":"success"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOllamaChat(t *testing.T) {
	server := newOllamaTestServer(t)
	rt := NewOllamaRuntime(server.URL)

	result, err := rt.Chat(context.Background(), "phi3:mini", []ChatMessage{UserMessage("hi")})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if result.Content != "Hello from phi3:mini" {
		t.Errorf("unexpected content %q", result.Content)
	}
	if result.Model != "phi3:mini" {
		t.Errorf("unexpected model %q", result.Model)
	}
}

func TestOllamaStreamChat(t *testing.T) {
	server := newOllamaTestServer(t)
	rt := NewOllamaRuntime(server.URL)

	chunks := make(chan string, 16)
	if err := rt.StreamChat(context.Background(), "phi3:mini", []ChatMessage{UserMessage("hi")}, chunks); err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	close(chunks)

	var out strings.Builder
	for c := range chunks {
		out.WriteString(c)
	}
	if out.String() != "Hello, world" {
		t.Errorf("unexpected stream %q", out.String())
	}
}

func TestOllamaListModels(t *testing.T) {
	server := newOllamaTestServer(t)
	rt := NewOllamaRuntime(server.URL)

	models, err := rt.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].Name != "phi3:mini" || models[0].Digest != "abc123" {
		t.Errorf("unexpected model info %+v", models[0])
	}
}

func TestOllamaGenerate(t *testing.T) {
	server := newOllamaTestServer(t)
	rt := NewOllamaRuntime(server.URL)

	result, err := rt.Generate(context.Background(), "phi3:mini", "say hi")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Content != "generated: say hi" {
		t.Errorf("unexpected content %q", result.Content)
	}
}

func TestOllamaPull(t *testing.T) {
	server := newOllamaTestServer(t)
	rt := NewOllamaRuntime(server.URL)

	if err := rt.Pull(context.Background(), "phi3:mini"); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
}

func TestOllamaPullReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	rt := NewOllamaRuntime(server.URL)
	err := rt.Pull(context.Background(), "nope")
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("expected pull error, got %v", err)
	}
}

func TestOllamaErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model missing", http.StatusNotFound)
	}))
	defer server.Close()

	rt := NewOllamaRuntime(server.URL)
	_, err := rt.Chat(context.Background(), "nope", []ChatMessage{UserMessage("hi")})
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected status in error, got %v", err)
	}
}
