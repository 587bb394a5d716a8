package engine

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned when text submitted for embedding is empty or
// whitespace-only. Embedding empty input would silently poison similarity
// rankings, so it is rejected up front.
var ErrEmptyInput = errors.New("empty input")

// ErrEmbedding wraps failures from the embedding endpoint so callers can
// distinguish them from generation failures.
var ErrEmbedding = errors.New("embedding failed")

// Engine abstracts a local inference backend. The only implementation today is
// the Ollama client; consumers depend on this interface so tests can swap in
// fakes.
type Engine interface {
	// Generate produces a completion for the given prompt. maxTokens caps
	// the response length; <= 0 leaves the model default in place.
	Generate(ctx context.Context, model, prompt string, maxTokens int) (string, error)

	// Embed returns the embedding vector for the given text using the
	// specified model. Empty text fails with ErrEmptyInput.
	Embed(ctx context.Context, model, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
