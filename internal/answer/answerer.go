// Package answer turns a free-form question into a grounded response: embed
// the query, retrieve the most similar journal entries, and have the local
// model synthesize an answer from those entries alone.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quillback/quillback/internal/engine"
	"github.com/quillback/quillback/internal/retrieval"
)

// ErrGeneration is returned when the model invocation fails or exceeds its
// timeout. The answer is never partially returned, and the call is never
// retried automatically; the caller must re-submit.
var ErrGeneration = errors.New("generation failed")

// NoMemoriesAnswer is the fixed response when retrieval finds nothing to
// ground an answer in. The model is not invoked in that case.
const NoMemoriesAnswer = "No relevant journal entries were found for that question."

// Searcher is the retrieval surface the answerer needs.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Result, error)
}

// Options configures an Answerer. Zero values fall back to sensible defaults.
type Options struct {
	TopK          int
	ContextBudget int           // prompt budget for retrieved entries, in tokens
	MaxTokens     int           // response length cap
	Timeout       time.Duration // per-invocation generation timeout
}

// Answerer orchestrates grounded question answering. The local model handle
// is an exclusive resource: concurrent Answer calls queue on the mutex rather
// than interleaving inference.
type Answerer struct {
	searcher Searcher
	engine   engine.Engine
	model    string
	opts     Options
	logger   *slog.Logger

	mu sync.Mutex
}

// New creates an Answerer generating with the given model.
func New(searcher Searcher, eng engine.Engine, model string, opts Options) *Answerer {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = defaultContextBudget
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Answerer{
		searcher: searcher,
		engine:   eng,
		model:    model,
		opts:     opts,
		logger:   slog.Default(),
	}
}

// Answer returns a synthesized answer grounded in retrieved journal entries.
// An empty corpus or zero retrieved entries short-circuits with
// NoMemoriesAnswer; query embedding failures propagate unchanged; model
// failures and timeouts surface as ErrGeneration.
func (a *Answerer) Answer(ctx context.Context, query string) (string, error) {
	results, err := a.searcher.Search(ctx, query, a.opts.TopK)
	if errors.Is(err, retrieval.ErrUnavailable) {
		return NoMemoriesAnswer, nil
	}
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return NoMemoriesAnswer, nil
	}

	prompt := buildPrompt(query, results, a.opts.ContextBudget)

	// Serialize access to the model handle; the timeout starts once the
	// handle is ours so queued callers aren't charged for the wait.
	a.mu.Lock()
	defer a.mu.Unlock()

	genCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	started := time.Now()
	out, err := a.engine.Generate(genCtx, a.model, prompt, a.opts.MaxTokens)
	if err != nil {
		a.logger.Warn("generation failed", "model", a.model, "elapsed", time.Since(started), "error", err)
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	answer := strings.TrimSpace(out)
	if answer == "" {
		return "", fmt.Errorf("%w: model returned empty response", ErrGeneration)
	}
	return answer, nil
}
