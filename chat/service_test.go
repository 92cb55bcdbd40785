package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/richinex/converse/llm"
	"github.com/richinex/converse/storage"
)

// fakeGateway records the last call and returns canned output.
type fakeGateway struct {
	lastModel    string
	lastMessages []llm.ChatMessage
	enhanced     bool
	reply        string
	err          error
}

func (f *fakeGateway) Chat(_ context.Context, model string, messages []llm.ChatMessage) (llm.ChatResult, error) {
	f.lastModel = model
	f.lastMessages = messages
	f.enhanced = false
	if f.err != nil {
		return llm.ChatResult{}, f.err
	}
	return llm.ChatResult{Content: f.reply, Model: model}, nil
}

func (f *fakeGateway) EnhancedChat(_ context.Context, model string, messages []llm.ChatMessage, _ bool) (llm.ChatResult, error) {
	f.lastModel = model
	f.lastMessages = messages
	f.enhanced = true
	if f.err != nil {
		return llm.ChatResult{}, f.err
	}
	return llm.ChatResult{Content: f.reply, Model: model}, nil
}

func newTestService(t *testing.T, gw *fakeGateway) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.OpenSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, gw, "phi3:mini", zap.NewNop()), store
}

func TestRespondNewConversation(t *testing.T) {
	gw := &fakeGateway{reply: "Hi! How can I help?"}
	svc, store := newTestService(t, gw)

	reply, err := svc.Respond(context.Background(), Request{Message: "Hello"})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply.Content != "Hi! How can I help?" {
		t.Errorf("unexpected content %q", reply.Content)
	}
	if reply.ConversationID == "" {
		t.Error("expected generated conversation id")
	}
	if reply.Model != "phi3:mini" {
		t.Errorf("expected default model, got %q", reply.Model)
	}

	conv, err := store.GetConversation(context.Background(), reply.ConversationID)
	if err != nil || conv == nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.Title != "Hello" {
		t.Errorf("expected title from first message, got %q", conv.Title)
	}

	messages, err := store.GetMessages(context.Background(), reply.ConversationID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected both turns persisted, got %d", len(messages))
	}
	if messages[0].Role != storage.RoleUser || messages[1].Role != storage.RoleAssistant {
		t.Errorf("unexpected roles %q, %q", messages[0].Role, messages[1].Role)
	}
	// The resolved model is recorded on both turns.
	if messages[0].Model == nil || *messages[0].Model != "phi3:mini" {
		t.Errorf("user message should record the resolved model, got %v", messages[0].Model)
	}
	if messages[1].Model == nil || *messages[1].Model != "phi3:mini" {
		t.Errorf("assistant message should record its model, got %v", messages[1].Model)
	}
}

func TestRespondSendsHistory(t *testing.T) {
	gw := &fakeGateway{reply: "second reply"}
	svc, _ := newTestService(t, gw)

	first, err := svc.Respond(context.Background(), Request{Message: "first question"})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	gw.reply = "third reply"
	if _, err := svc.Respond(context.Background(), Request{
		Message:        "follow-up",
		ConversationID: first.ConversationID,
	}); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	// History plus the new user message: user, assistant, user.
	if len(gw.lastMessages) != 3 {
		t.Fatalf("expected 3 messages sent to runtime, got %d", len(gw.lastMessages))
	}
	if gw.lastMessages[0].Content != "first question" {
		t.Errorf("history out of order: %+v", gw.lastMessages)
	}
	if gw.lastMessages[2].Content != "follow-up" {
		t.Errorf("new message must come last: %+v", gw.lastMessages)
	}
}

func TestRespondExplicitModelAndSearch(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	svc, _ := newTestService(t, gw)

	if _, err := svc.Respond(context.Background(), Request{
		Message:      "search for gophers",
		Model:        "llama3",
		EnableSearch: true,
	}); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if gw.lastModel != "llama3" {
		t.Errorf("expected explicit model, got %q", gw.lastModel)
	}
	if !gw.enhanced {
		t.Error("expected the enhanced chat path for a search request")
	}
}

func TestRespondWithoutSearchUsesPlainChat(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	svc, _ := newTestService(t, gw)

	if _, err := svc.Respond(context.Background(), Request{Message: "hello"}); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if gw.enhanced {
		t.Error("plain chat expected when search is disabled")
	}
}

func TestRespondStreamRejectedAfterPersist(t *testing.T) {
	gw := &fakeGateway{reply: "never used"}
	svc, store := newTestService(t, gw)

	_, err := svc.Respond(context.Background(), Request{
		Message:        "stream please",
		ConversationID: "conv-stream",
		Stream:         true,
	})
	if !errors.Is(err, ErrStreamingNotSupported) {
		t.Fatalf("expected ErrStreamingNotSupported, got %v", err)
	}

	// The user message must survive the rejection.
	messages, err := store.GetMessages(context.Background(), "conv-stream")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "stream please" {
		t.Errorf("expected persisted user message, got %+v", messages)
	}
}

func TestRespondRuntimeFailureKeepsUserMessage(t *testing.T) {
	gw := &fakeGateway{err: errors.New("runtime down")}
	svc, store := newTestService(t, gw)

	_, err := svc.Respond(context.Background(), Request{
		Message:        "doomed",
		ConversationID: "conv-fail",
	})
	if err == nil || !strings.Contains(err.Error(), "runtime down") {
		t.Fatalf("expected wrapped runtime error, got %v", err)
	}

	messages, err := store.GetMessages(context.Background(), "conv-fail")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != storage.RoleUser {
		t.Errorf("expected only the user message, got %+v", messages)
	}
}

func TestRespondLongFirstMessageTitle(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	svc, store := newTestService(t, gw)

	long := "Please give me a very detailed walkthrough of how to configure a reverse proxy"
	reply, err := svc.Respond(context.Background(), Request{Message: long})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	conv, err := store.GetConversation(context.Background(), reply.ConversationID)
	if err != nil || conv == nil {
		t.Fatalf("conversation missing: %v", err)
	}
	if len(conv.Title) > 50 || !strings.HasSuffix(conv.Title, "...") {
		t.Errorf("unexpected title %q", conv.Title)
	}
}
