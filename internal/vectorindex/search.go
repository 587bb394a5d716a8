package vectorindex

import (
	"math"
	"sort"
)

// Search returns the top-k current-version records most similar to the query
// vector, descending by cosine similarity with ties broken by ascending entry
// id. k is clamped to the number of records; an empty index yields an empty
// result, not an error.
func (ix *Index) Search(query []float32, k int) []Scored {
	records := ix.All()
	if len(records) == 0 || k <= 0 {
		return nil
	}

	scored := make([]Scored, 0, len(records))
	for _, r := range records {
		scored = append(scored, Scored{
			Record: r,
			Score:  cosineSimilarity(query, r.Vector),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].EntryID < scored[j].EntryID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortInt64s(xs []int64) {
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
}
