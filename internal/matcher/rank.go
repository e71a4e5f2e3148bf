// Package matcher implements the vector matcher (C5): cosine-similarity
// ranking of stored job embeddings against a query vector, under optional
// structured filters. Candidate retrieval is delegated to a Storage
// collaborator through Query (package storage/postgres also offers a
// pgvector ANN pre-filter, QueryByEmbedding, which Rank does not call), but
// the ranking itself - similarity, the zero-norm guard, the
// dimensionality-mismatch exclusion, the min-similarity cut and the
// stable-tie-break top-k selection - always happens here in Go, so a
// mis-sized stored vector is counted and dropped rather than silently
// coerced by whatever storage backend is behind Storage.
package matcher

import (
	"math"
	"sort"

	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/observability"
)

// Storage is the subset of domain.JobStore the matcher needs to fetch
// ranking candidates.
type Storage interface {
	Query(ctx domain.Context, filter domain.JobFilter, limit int) ([]domain.StoredTuple, error)
}

// Matcher ranks stored embeddings against a query vector.
type Matcher struct {
	Storage Storage
	// Dim is the expected embedding dimensionality D; vectors of any other
	// length are excluded and counted, never truncated or padded.
	Dim int
}

// New constructs a Matcher over store, expecting all valid embeddings to
// have length dim.
func New(store Storage, dim int) *Matcher {
	return &Matcher{Storage: store, Dim: dim}
}

// candidatePoolMultiplier bounds how many rows Query fetches relative to
// limit, so the min_similarity filter and dimensionality exclusion still
// have enough candidates to choose the true top-limit from.
const candidatePoolMultiplier = 4

// Rank returns the top-limit EnrichedJobs by descending cosine similarity to
// query, restricted to candidates with sim >= minSimilarity and matching
// filter, ties broken by ascending id.
func (m *Matcher) Rank(ctx domain.Context, query []float32, limit int, minSimilarity float64, filter domain.JobFilter) ([]domain.MatchResult, error) {
	poolLimit := 0
	if limit > 0 {
		poolLimit = limit * candidatePoolMultiplier
	}
	tuples, err := m.Storage.Query(ctx, filter, poolLimit)
	if err != nil {
		return nil, err
	}

	results := make([]domain.MatchResult, 0, len(tuples))
	for _, t := range tuples {
		if len(t.Embedding) != m.Dim {
			observability.RecordEmbeddingDimMismatch()
			continue
		}
		sim := cosineSimilarity(query, t.Embedding)
		if sim < minSimilarity {
			continue
		}
		results = append(results, domain.MatchResult{Job: t.Job, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Job.ID < results[j].Job.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||), mapping either
// zero-norm vector to a similarity of 0 rather than dividing by zero.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		normA += da * da
		normB += db * db
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
