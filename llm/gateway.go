// Gateway - the service-facing entry point to a chat runtime.
//
// Information Hiding:
// - Concurrency limiting behind a fixed slot pool
// - Availability degradation for model listing
// - Prompt augmentation (datetime, web search) assembled here

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/richinex/converse/search"
)

// DefaultWorkers is the default number of concurrent runtime calls.
const DefaultWorkers = 4

// ErrGatewayClosed is returned once Close has been called.
var ErrGatewayClosed = errors.New("gateway is closed")

// searchTriggers are phrases in a user message that enable web search
// augmentation. Matched case-insensitively against the last message.
var searchTriggers = []string{
	"search",
	"find",
	"look up",
	"what is",
	"who is",
	"when did",
	"latest news",
}

// Gateway wraps a Runtime with a bounded worker pool, availability
// degradation, and optional prompt augmentation.
type Gateway struct {
	runtime  Runtime
	searcher search.Searcher
	logger   *zap.Logger

	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewGateway creates a gateway over the runtime. workers caps concurrent
// runtime and search calls; values below 1 fall back to DefaultWorkers.
// searcher may be nil, which disables search augmentation.
func NewGateway(runtime Runtime, searcher search.Searcher, workers int, logger *zap.Logger) *Gateway {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		runtime:  runtime,
		searcher: searcher,
		logger:   logger,
		slots:    make(chan struct{}, workers),
	}
}

// acquire claims a pool slot, or fails when the context is done or the
// gateway is closed. The returned release func must be called once.
func (g *Gateway) acquire(ctx context.Context) (func(), error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrGatewayClosed
	}
	g.wg.Add(1)
	g.mu.Unlock()

	select {
	case g.slots <- struct{}{}:
		return func() {
			<-g.slots
			g.wg.Done()
		}, nil
	case <-ctx.Done():
		g.wg.Done()
		return nil, ctx.Err()
	}
}

// Chat sends a chat completion through the pool.
func (g *Gateway) Chat(ctx context.Context, model string, messages []ChatMessage) (ChatResult, error) {
	release, err := g.acquire(ctx)
	if err != nil {
		return ChatResult{}, err
	}
	defer release()

	return g.runtime.Chat(ctx, model, messages)
}

// StreamChat streams a chat completion through the pool.
func (g *Gateway) StreamChat(ctx context.Context, model string, messages []ChatMessage, chunks chan<- string) error {
	release, err := g.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return g.runtime.StreamChat(ctx, model, messages, chunks)
}

// EnhancedChat prepends the current date and time as a system message
// and, when enableSearch is set and the last message asks for lookup,
// appends top web results. Any augmentation failure falls back to a
// plain Chat with the original messages.
func (g *Gateway) EnhancedChat(ctx context.Context, model string, messages []ChatMessage, enableSearch bool) (ChatResult, error) {
	augmented, err := g.augment(ctx, messages, enableSearch)
	if err != nil {
		g.logger.Warn("augmentation failed, falling back to plain chat", zap.Error(err))
		return g.Chat(ctx, model, messages)
	}
	return g.Chat(ctx, model, augmented)
}

func (g *Gateway) augment(ctx context.Context, messages []ChatMessage, enableSearch bool) ([]ChatMessage, error) {
	now := time.Now()
	datetime := fmt.Sprintf("Current date and time: %s (%s, %s %s, %d)",
		now.Format(time.RFC3339),
		now.Weekday(),
		now.Month(),
		now.Format("2006-01-02"),
		now.Year(),
	)

	augmented := make([]ChatMessage, 0, len(messages)+2)
	augmented = append(augmented, SystemMessage(datetime))
	augmented = append(augmented, messages...)

	if !enableSearch || g.searcher == nil || len(messages) == 0 {
		return augmented, nil
	}

	last := messages[len(messages)-1].Content
	if !wantsSearch(last) {
		return augmented, nil
	}

	release, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	results, err := g.searcher.Search(ctx, last, 3)
	release()
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	if len(results) == 0 {
		return augmented, nil
	}

	var sb strings.Builder
	sb.WriteString("Here are some recent search results:\n")
	for i, result := range results {
		sb.WriteString(fmt.Sprintf("%d. %s: %s...\n", i+1, result.Title, truncateRunes(result.Body, 200)))
	}
	augmented = append(augmented, SystemMessage(sb.String()))

	g.logger.Debug("augmented chat with search results",
		zap.Int("results", len(results)))
	return augmented, nil
}

// truncateRunes caps s at n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// wantsSearch reports whether the message asks for a web lookup.
func wantsSearch(message string) bool {
	lowered := strings.ToLower(message)
	for _, trigger := range searchTriggers {
		if strings.Contains(lowered, trigger) {
			return true
		}
	}
	return false
}

// ListModels returns the runtime's models, degrading to an empty list
// when the runtime is unreachable so callers stay available.
func (g *Gateway) ListModels(ctx context.Context) []ModelInfo {
	release, err := g.acquire(ctx)
	if err != nil {
		g.logger.Warn("model listing unavailable", zap.Error(err))
		return []ModelInfo{}
	}
	defer release()

	models, err := g.runtime.ListModels(ctx)
	if err != nil {
		g.logger.Warn("failed to list models", zap.Error(err))
		return []ModelInfo{}
	}
	if models == nil {
		models = []ModelInfo{}
	}
	return models
}

// CheckModelExists reports whether the named model is available.
func (g *Gateway) CheckModelExists(ctx context.Context, model string) bool {
	for _, m := range g.ListModels(ctx) {
		if m.Name == model {
			return true
		}
	}
	return false
}

// PullModel downloads a model through the runtime.
func (g *Gateway) PullModel(ctx context.Context, model string) error {
	release, err := g.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return g.runtime.Pull(ctx, model)
}

// generator is implemented by runtimes with a single-shot prompt path.
type generator interface {
	Generate(ctx context.Context, model, prompt string) (ChatResult, error)
}

// Generate sends a single-shot prompt when the runtime supports it;
// otherwise it degrades to a one-message chat.
func (g *Gateway) Generate(ctx context.Context, model, prompt string) (ChatResult, error) {
	release, err := g.acquire(ctx)
	if err != nil {
		return ChatResult{}, err
	}
	defer release()

	if gen, ok := g.runtime.(generator); ok {
		return gen.Generate(ctx, model, prompt)
	}
	return g.runtime.Chat(ctx, model, []ChatMessage{UserMessage(prompt)})
}

// Close stops accepting new calls and waits for in-flight ones.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.wg.Wait()
}
