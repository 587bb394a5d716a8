package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quillback/quillback/internal/storage"
	"github.com/quillback/quillback/internal/vectorindex"
)

// ErrUnavailable is returned when the vector index holds no current-version
// records — the corpus hasn't been imported or embedded yet. Callers that can
// live with "no results" (plain search) map it to an empty response; the QA
// path uses it to short-circuit.
var ErrUnavailable = errors.New("no embedded entries available")

// Result is one retrieved journal entry with its similarity score, ordered
// descending by score. Results are ephemeral, assembled per query.
type Result struct {
	ID      int64     `json:"id"`
	Date    time.Time `json:"date"`
	Content string    `json:"content"`
	Score   float64   `json:"score"`
}

// Retriever embeds queries and joins vector-index hits back to entry rows.
type Retriever struct {
	embedder *Embedder
	index    *vectorindex.Index
	store    *storage.Store
}

// NewRetriever creates a Retriever over the given embedder, index, and entry store.
func NewRetriever(embedder *Embedder, index *vectorindex.Index, store *storage.Store) *Retriever {
	return &Retriever{embedder: embedder, index: index, store: store}
}

// Search embeds the query and returns the top-k most similar entries.
// An empty index yields ErrUnavailable; embedding failures propagate wrapped.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if r.index.Count() == 0 {
		return nil, ErrUnavailable
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored := r.index.Search(vec, k)
	if len(scored) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(scored))
	scores := make(map[int64]float64, len(scored))
	for i, s := range scored {
		ids[i] = s.EntryID
		scores[s.EntryID] = s.Score
	}

	entries, err := r.store.GetEntriesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}

	byID := make(map[int64]storage.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	// Preserve the index's score ordering; entries deleted since embedding
	// simply drop out.
	results := make([]Result, 0, len(scored))
	for _, s := range scored {
		e, ok := byID[s.EntryID]
		if !ok {
			continue
		}
		results = append(results, Result{
			ID:      e.ID,
			Date:    e.Date,
			Content: e.Content,
			Score:   scores[e.ID],
		})
	}
	return results, nil
}
