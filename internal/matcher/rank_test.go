package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmatch/core/internal/domain"
)

type fakeStorage struct {
	tuples []domain.StoredTuple
}

func (f *fakeStorage) Query(_ domain.Context, filter domain.JobFilter, limit int) ([]domain.StoredTuple, error) {
	var out []domain.StoredTuple
	for _, t := range f.tuples {
		if filter.Seniority != "" && t.Job.Seniority != filter.Seniority {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func tuple(id string, emb []float32, seniority domain.Seniority) domain.StoredTuple {
	return domain.StoredTuple{ID: id, Job: domain.EnrichedJob{RawJob: domain.RawJob{ID: id}, Seniority: seniority}, Embedding: emb}
}

func TestMatcher_Rank_OrdersByDescendingSimilarity(t *testing.T) {
	store := &fakeStorage{tuples: []domain.StoredTuple{
		tuple("exact", []float32{1, 0}, ""),
		tuple("near", []float32{0.99, 0.01}, ""),
		tuple("far", []float32{0.5, 0.5}, ""),
	}}
	m := New(store, 2)

	results, err := m.Rank(context.Background(), []float32{1, 0}, 10, -1, domain.JobFilter{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].Job.ID)
	assert.Equal(t, "near", results[1].Job.ID)
	assert.Equal(t, "far", results[2].Job.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

// TestMatcher_Rank_ExcludesDimensionalityMismatch covers scenario S5: a
// stored vector of the wrong length is dropped and counted, never coerced.
func TestMatcher_Rank_ExcludesDimensionalityMismatch(t *testing.T) {
	store := &fakeStorage{tuples: []domain.StoredTuple{
		tuple("ok", []float32{1, 0, 0}, ""),
		tuple("too-short", []float32{1, 0}, ""),
		tuple("too-long", []float32{1, 0, 0, 0}, ""),
	}}
	m := New(store, 3)

	results, err := m.Rank(context.Background(), []float32{1, 0, 0}, 10, -1, domain.JobFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Job.ID)
}

func TestMatcher_Rank_ZeroNormVectorMapsToZeroSimilarity(t *testing.T) {
	store := &fakeStorage{tuples: []domain.StoredTuple{
		tuple("zero", []float32{0, 0}, ""),
		tuple("real", []float32{1, 1}, ""),
	}}
	m := New(store, 2)

	results, err := m.Rank(context.Background(), []float32{1, 1}, 10, -1, domain.JobFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "real", results[0].Job.ID)
	assert.Equal(t, "zero", results[1].Job.ID)
	assert.Equal(t, float64(0), results[1].Similarity)
}

func TestMatcher_Rank_FiltersBelowMinSimilarity(t *testing.T) {
	store := &fakeStorage{tuples: []domain.StoredTuple{
		tuple("close", []float32{1, 0}, ""),
		tuple("orthogonal", []float32{0, 1}, ""),
	}}
	m := New(store, 2)

	results, err := m.Rank(context.Background(), []float32{1, 0}, 10, 0.5, domain.JobFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].Job.ID)
}

func TestMatcher_Rank_TiesBreakByAscendingID(t *testing.T) {
	store := &fakeStorage{tuples: []domain.StoredTuple{
		tuple("zeta", []float32{1, 0}, ""),
		tuple("alpha", []float32{1, 0}, ""),
	}}
	m := New(store, 2)

	results, err := m.Rank(context.Background(), []float32{1, 0}, 10, -1, domain.JobFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Job.ID)
	assert.Equal(t, "zeta", results[1].Job.ID)
}

func TestMatcher_Rank_RespectsLimit(t *testing.T) {
	store := &fakeStorage{tuples: []domain.StoredTuple{
		tuple("a", []float32{1, 0}, ""),
		tuple("b", []float32{1, 0}, ""),
		tuple("c", []float32{1, 0}, ""),
	}}
	m := New(store, 2)

	results, err := m.Rank(context.Background(), []float32{1, 0}, 2, -1, domain.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMatcher_Rank_PassesFilterThrough(t *testing.T) {
	store := &fakeStorage{tuples: []domain.StoredTuple{
		tuple("senior", []float32{1, 0}, domain.SenioritySenior),
		tuple("junior", []float32{1, 0}, domain.SeniorityJunior),
	}}
	m := New(store, 2)

	results, err := m.Rank(context.Background(), []float32{1, 0}, 10, -1, domain.JobFilter{Seniority: domain.SenioritySenior})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "senior", results[0].Job.ID)
}
