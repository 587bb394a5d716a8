package retrieval

import (
	"context"
	"fmt"

	"github.com/quillback/quillback/internal/engine"
)

// Embedder wraps an Engine with a fixed embedding model. The model name
// doubles as the model version stamped onto index records, which is what keeps
// query vectors and stored vectors in the same similarity space.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// ModelVersion returns the embedding model name.
func (e *Embedder) ModelVersion() string {
	return e.model
}
