package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/richinex/converse/search"
)

// fakeRuntime records the messages it receives and returns canned output.
type fakeRuntime struct {
	mu        sync.Mutex
	lastChat  []ChatMessage
	chatErr   error
	models    []ModelInfo
	modelsErr error
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	block     chan struct{} // when non-nil, Chat blocks until closed
}

func (f *fakeRuntime) Name() string { return "fake" }

func (f *fakeRuntime) Chat(ctx context.Context, model string, messages []ChatMessage) (ChatResult, error) {
	cur := f.inFlight.Add(1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ChatResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.lastChat = append([]ChatMessage(nil), messages...)
	f.mu.Unlock()

	if f.chatErr != nil {
		return ChatResult{}, f.chatErr
	}
	return ChatResult{Content: "fake reply", Model: model}, nil
}

func (f *fakeRuntime) StreamChat(ctx context.Context, model string, messages []ChatMessage, chunks chan<- string) error {
	chunks <- "fake "
	chunks <- "stream"
	return nil
}

func (f *fakeRuntime) ListModels(_ context.Context) ([]ModelInfo, error) {
	return f.models, f.modelsErr
}

func (f *fakeRuntime) Pull(_ context.Context, _ string) error { return nil }

func (f *fakeRuntime) received() []ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastChat
}

// fakeSearcher returns canned results or a canned error.
type fakeSearcher struct {
	results []search.Result
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

func TestGatewayChatPassthrough(t *testing.T) {
	rt := &fakeRuntime{}
	gw := NewGateway(rt, nil, 2, zap.NewNop())
	defer gw.Close()

	result, err := gw.Chat(context.Background(), "phi3:mini", []ChatMessage{UserMessage("hi")})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if result.Content != "fake reply" {
		t.Errorf("unexpected content %q", result.Content)
	}
}

func TestEnhancedChatPrependsDatetime(t *testing.T) {
	rt := &fakeRuntime{}
	gw := NewGateway(rt, nil, 2, zap.NewNop())
	defer gw.Close()

	if _, err := gw.EnhancedChat(context.Background(), "m", []ChatMessage{UserMessage("hello")}, false); err != nil {
		t.Fatalf("EnhancedChat failed: %v", err)
	}

	got := rt.received()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Role != "system" || !strings.HasPrefix(got[0].Content, "Current date and time: ") {
		t.Errorf("expected datetime system message first, got %+v", got[0])
	}
	if got[1].Content != "hello" {
		t.Errorf("user message lost: %+v", got[1])
	}
}

func TestEnhancedChatSearchTriggered(t *testing.T) {
	rt := &fakeRuntime{}
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "Go", Body: "A programming language", URL: "https://go.dev"},
	}}
	gw := NewGateway(rt, searcher, 2, zap.NewNop())
	defer gw.Close()

	query := "What is the Go programming language?"
	if _, err := gw.EnhancedChat(context.Background(), "m", []ChatMessage{UserMessage(query)}, true); err != nil {
		t.Fatalf("EnhancedChat failed: %v", err)
	}

	if len(searcher.queries) != 1 || searcher.queries[0] != query {
		t.Errorf("expected verbatim query, got %v", searcher.queries)
	}

	got := rt.received()
	if len(got) != 3 {
		t.Fatalf("expected 3 messages (datetime, user, results), got %d", len(got))
	}
	last := got[2]
	if last.Role != "system" || !strings.Contains(last.Content, "Here are some recent search results:") {
		t.Errorf("expected search results system message, got %+v", last)
	}
	if !strings.Contains(last.Content, "1. Go: A programming language...\n") {
		t.Errorf("result not formatted: %q", last.Content)
	}
}

func TestEnhancedChatNoTriggerSkipsSearch(t *testing.T) {
	rt := &fakeRuntime{}
	searcher := &fakeSearcher{}
	gw := NewGateway(rt, searcher, 2, zap.NewNop())
	defer gw.Close()

	if _, err := gw.EnhancedChat(context.Background(), "m", []ChatMessage{UserMessage("tell me a joke")}, true); err != nil {
		t.Fatalf("EnhancedChat failed: %v", err)
	}
	if len(searcher.queries) != 0 {
		t.Errorf("search should not run without a trigger phrase, got %v", searcher.queries)
	}
}

func TestEnhancedChatSearchFailureFallsBack(t *testing.T) {
	rt := &fakeRuntime{}
	searcher := &fakeSearcher{err: errors.New("network down")}
	gw := NewGateway(rt, searcher, 2, zap.NewNop())
	defer gw.Close()

	result, err := gw.EnhancedChat(context.Background(), "m", []ChatMessage{UserMessage("search for cats")}, true)
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if result.Content != "fake reply" {
		t.Errorf("unexpected content %q", result.Content)
	}

	// Fallback uses the original messages without augmentation.
	got := rt.received()
	if len(got) != 1 || got[0].Content != "search for cats" {
		t.Errorf("expected plain fallback messages, got %+v", got)
	}
}

func TestEnhancedChatTruncatesLongBodies(t *testing.T) {
	rt := &fakeRuntime{}
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "Long", Body: strings.Repeat("x", 300)},
	}}
	gw := NewGateway(rt, searcher, 2, zap.NewNop())
	defer gw.Close()

	if _, err := gw.EnhancedChat(context.Background(), "m", []ChatMessage{UserMessage("look up something")}, true); err != nil {
		t.Fatalf("EnhancedChat failed: %v", err)
	}

	got := rt.received()
	last := got[len(got)-1].Content
	want := "1. Long: " + strings.Repeat("x", 200) + "..."
	if !strings.Contains(last, want) {
		t.Errorf("body not truncated to 200 chars: %q", last)
	}
	if strings.Contains(last, strings.Repeat("x", 201)) {
		t.Errorf("body exceeds 200 chars: %q", last)
	}
}

// Short bodies keep the trailing ellipsis too; the formatter always
// renders "N. Title: Body...".
func TestEnhancedChatFormatsShortBodies(t *testing.T) {
	rt := &fakeRuntime{}
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "Go", Body: "short body"},
	}}
	gw := NewGateway(rt, searcher, 2, zap.NewNop())
	defer gw.Close()

	if _, err := gw.EnhancedChat(context.Background(), "m", []ChatMessage{UserMessage("look up something")}, true); err != nil {
		t.Fatalf("EnhancedChat failed: %v", err)
	}

	got := rt.received()
	last := got[len(got)-1].Content
	if !strings.Contains(last, "1. Go: short body...\n") {
		t.Errorf("short body formatted without ellipsis: %q", last)
	}
}

func TestEnhancedChatTruncatesOnRuneBoundary(t *testing.T) {
	rt := &fakeRuntime{}
	// One ASCII byte then two-byte runes puts every rune boundary on an odd
	// offset, so a plain byte cut at 200 would split a rune.
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "Unicode", Body: "a" + strings.Repeat("é", 150)},
	}}
	gw := NewGateway(rt, searcher, 2, zap.NewNop())
	defer gw.Close()

	if _, err := gw.EnhancedChat(context.Background(), "m", []ChatMessage{UserMessage("look up something")}, true); err != nil {
		t.Fatalf("EnhancedChat failed: %v", err)
	}

	got := rt.received()
	last := got[len(got)-1].Content
	if !utf8.ValidString(last) {
		t.Fatalf("truncation produced invalid UTF-8: %q", last)
	}
	if !strings.Contains(last, "1. Unicode: a"+strings.Repeat("é", 99)+"...\n") {
		t.Errorf("unexpected truncated body: %q", last)
	}
}

func TestListModelsDegradesToEmpty(t *testing.T) {
	rt := &fakeRuntime{modelsErr: errors.New("connection refused")}
	gw := NewGateway(rt, nil, 2, zap.NewNop())
	defer gw.Close()

	models := gw.ListModels(context.Background())
	if models == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(models) != 0 {
		t.Errorf("expected no models, got %v", models)
	}
}

func TestCheckModelExists(t *testing.T) {
	rt := &fakeRuntime{models: []ModelInfo{{Name: "phi3:mini"}, {Name: "llama3"}}}
	gw := NewGateway(rt, nil, 2, zap.NewNop())
	defer gw.Close()

	if !gw.CheckModelExists(context.Background(), "llama3") {
		t.Error("expected llama3 to exist")
	}
	if gw.CheckModelExists(context.Background(), "mistral") {
		t.Error("did not expect mistral to exist")
	}
}

func TestGatewayBoundsConcurrency(t *testing.T) {
	block := make(chan struct{})
	rt := &fakeRuntime{block: block}
	gw := NewGateway(rt, nil, 2, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gw.Chat(context.Background(), "m", []ChatMessage{UserMessage("hi")})
		}()
	}

	// Let goroutines pile up against the pool, then release them.
	for rt.inFlight.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	close(block)
	wg.Wait()
	gw.Close()

	if max := rt.maxSeen.Load(); max > 2 {
		t.Errorf("pool admitted %d concurrent calls, limit is 2", max)
	}
}

func TestGatewayClosedRejectsCalls(t *testing.T) {
	rt := &fakeRuntime{}
	gw := NewGateway(rt, nil, 2, zap.NewNop())
	gw.Close()

	_, err := gw.Chat(context.Background(), "m", []ChatMessage{UserMessage("hi")})
	if !errors.Is(err, ErrGatewayClosed) {
		t.Errorf("expected ErrGatewayClosed, got %v", err)
	}
}

func TestStreamChatPassthrough(t *testing.T) {
	rt := &fakeRuntime{}
	gw := NewGateway(rt, nil, 2, zap.NewNop())
	defer gw.Close()

	chunks := make(chan string, 8)
	if err := gw.StreamChat(context.Background(), "m", []ChatMessage{UserMessage("hi")}, chunks); err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	close(chunks)

	var out strings.Builder
	for c := range chunks {
		out.WriteString(c)
	}
	if out.String() != "fake stream" {
		t.Errorf("unexpected stream %q", out.String())
	}
}
