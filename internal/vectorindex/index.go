// Package vectorindex holds the per-session, in-memory embedding index over
// journal entries. The corpus is small enough to rebuild on every start, so
// there is no persistence and no ANN structure; search is brute-force cosine
// similarity.
package vectorindex

import (
	"sync"
	"time"
)

// Record is one stored embedding. Records are written whole by the embedding
// job and never mutated afterwards; re-embedding replaces the record.
type Record struct {
	EntryID      int64
	Vector       []float32
	ModelVersion string
	CreatedAt    time.Time
}

// Scored is a Record with a similarity score attached.
type Scored struct {
	Record
	Score float64
}

// Index maps entry ids to embedding records for a single configured model
// version. Records carrying a different model version are invisible to All,
// Count, and Search — vector spaces from different models are not comparable.
//
// Concurrency: single writer (the embedding job), many readers. Each record is
// installed atomically under the write lock after its vector is fully
// computed, so readers always observe a consistent set.
type Index struct {
	mu      sync.RWMutex
	version string
	records map[int64]Record
}

// New creates an empty Index for the given model version.
func New(modelVersion string) *Index {
	return &Index{
		version: modelVersion,
		records: make(map[int64]Record),
	}
}

// ModelVersion returns the model version this index serves.
func (ix *Index) ModelVersion() string {
	return ix.version
}

// Upsert installs the embedding for an entry, overwriting any prior record.
func (ix *Index) Upsert(entryID int64, vector []float32, modelVersion string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records[entryID] = Record{
		EntryID:      entryID,
		Vector:       vector,
		ModelVersion: modelVersion,
		CreatedAt:    time.Now().UTC(),
	}
}

// All returns a snapshot of every current-version record. The slice is a copy;
// callers may iterate it while the embedding job keeps writing.
func (ix *Index) All() []Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]Record, 0, len(ix.records))
	for _, r := range ix.records {
		if r.ModelVersion != ix.version {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Missing returns, in ascending order, the subset of ids that lack a
// current-version record. A record embedded under a different model version
// counts as missing, so a model change triggers full re-embedding.
func (ix *Index) Missing(ids []int64) []int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var missing []int64
	for _, id := range ids {
		r, ok := ix.records[id]
		if !ok || r.ModelVersion != ix.version {
			missing = append(missing, id)
		}
	}
	sortInt64s(missing)
	return missing
}

// Count returns the number of current-version records.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := 0
	for _, r := range ix.records {
		if r.ModelVersion == ix.version {
			n++
		}
	}
	return n
}

// Delete removes the record for an entry, if present.
func (ix *Index) Delete(entryID int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.records, entryID)
}
