// Package redis adapts github.com/redis/go-redis/v9 to domain.JobCache, the
// best-effort enriched-job cache the stream worker writes to after a
// successful storage upsert. Grounded on the CV evaluator's
// internal/service/ratelimiter redis.Client construction style.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobmatch/core/internal/domain"
)

// Cache wraps a redis.Client.
type Cache struct {
	rdb *redis.Client
}

// New parses url (a redis:// connection string) and returns a Cache.
func New(url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-constructed client, for tests against
// alicebob/miniredis.
func NewFromClient(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

// CacheJob stores j under key id with the given ttl. Per spec §4.3, failures
// here are the caller's to log; this method just reports them.
func (c *Cache) CacheJob(ctx domain.Context, id string, j domain.EnrichedJob, ttl time.Duration) error {
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("redis: marshal job: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(id), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

// GetJob is a best-effort read path for a cache-first lookup before falling
// back to storage; not required by spec.md's core contract. The HTTP
// handlers in this repository do not call it.
func (c *Cache) GetJob(ctx context.Context, id string) (domain.EnrichedJob, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	if err == redis.Nil {
		return domain.EnrichedJob{}, false, nil
	}
	if err != nil {
		return domain.EnrichedJob{}, false, fmt.Errorf("redis: get: %w", err)
	}
	var j domain.EnrichedJob
	if err := json.Unmarshal(raw, &j); err != nil {
		return domain.EnrichedJob{}, false, fmt.Errorf("redis: unmarshal job: %w", err)
	}
	return j, true, nil
}

func cacheKey(id string) string { return "jobmatch:job:" + id }

var _ domain.JobCache = (*Cache)(nil)
