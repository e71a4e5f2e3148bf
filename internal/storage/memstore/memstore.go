// Package memstore is an in-memory domain.JobStore for tests that need a
// real Query/Get/Upsert round trip without a database. The matcher and
// resume tests use their own fakes instead.
package memstore

import (
	"sync"

	"github.com/jobmatch/core/internal/domain"
)

// Store is a concurrency-safe in-memory domain.JobStore.
type Store struct {
	mu   sync.RWMutex
	byID map[string]domain.EnrichedJob
	// order tracks insertion order so Query's recency ordering is
	// deterministic without relying on CreatedAt timestamps in tests.
	order []string
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]domain.EnrichedJob)}
}

func (s *Store) UpsertEnrichedJob(_ domain.Context, j domain.EnrichedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[j.ID]; !exists {
		s.order = append(s.order, j.ID)
	}
	s.byID[j.ID] = j
	return nil
}

func (s *Store) Get(_ domain.Context, id string) (domain.EnrichedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[id]
	if !ok {
		return domain.EnrichedJob{}, domain.ErrNotFound
	}
	return j, nil
}

// Query returns tuples matching filter in most-recently-inserted-first
// order, capped at limit (limit <= 0 means no cap).
func (s *Store) Query(_ domain.Context, filter domain.JobFilter, limit int) ([]domain.StoredTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StoredTuple
	for i := len(s.order) - 1; i >= 0; i-- {
		j, ok := s.byID[s.order[i]]
		if !ok || !matches(j, filter) {
			continue
		}
		out = append(out, domain.StoredTuple{ID: j.ID, Job: j, Embedding: j.Embedding})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matches(j domain.EnrichedJob, f domain.JobFilter) bool {
	if f.Seniority != "" && j.Seniority != f.Seniority {
		return false
	}
	if !containsAll(j.Tags, f.RequireTags) {
		return false
	}
	if !containsAll(j.Skills, f.RequireSkill) {
		return false
	}
	return true
}

func containsAll(haystack, needles []string) bool {
	if len(needles) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(haystack))
	for _, h := range haystack {
		set[h] = struct{}{}
	}
	for _, n := range needles {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

var _ domain.JobStore = (*Store)(nil)
