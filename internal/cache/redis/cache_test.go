package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmatch/core/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	job := domain.EnrichedJob{
		RawJob:    domain.RawJob{ID: "job-1", Position: "Engineer"},
		Skills:    []string{"Go"},
		Seniority: domain.SenioritySenior,
		Embedding: []float32{0.1, 0.2},
	}

	require.NoError(t, c.CacheJob(context.Background(), job.ID, job, time.Minute))

	got, ok, err := c.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Skills, got.Skills)
	assert.Equal(t, job.Seniority, got.Seniority)
}

func TestCache_MissReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	_, ok, err := c.GetJob(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}
