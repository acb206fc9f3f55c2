package normalize

import (
	"context"
	"sync"
	"time"

	redisinfra "github.com/openmedi/medirec/internal/infrastructure/database/redis"
)

// Cache stores normalization verdicts keyed by input identifier, failures
// included.
type Cache interface {
	Get(ctx context.Context, id string) (Normalization, bool, error)
	Put(ctx context.Context, id string, norm Normalization) error
}

// MemoryCache is the per-run in-process cache.  Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Normalization
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Normalization)}
}

func (c *MemoryCache) Get(_ context.Context, id string) (Normalization, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	norm, ok := c.entries[id]
	return norm, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, id string, norm Normalization) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = norm
	return nil
}

// RedisCache persists verdicts across runs through the shared redis cache.
type RedisCache struct {
	cache redisinfra.Cache
	ttl   time.Duration
}

// NewRedisCache wraps the shared cache; ttl zero uses the cache default.
func NewRedisCache(cache redisinfra.Cache, ttl time.Duration) *RedisCache {
	return &RedisCache{cache: cache, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, id string) (Normalization, bool, error) {
	var norm Normalization
	err := c.cache.Get(ctx, "normalize:"+id, &norm)
	if err == redisinfra.ErrCacheMiss {
		return Normalization{}, false, nil
	}
	if err != nil {
		return Normalization{}, false, err
	}
	return norm, true, nil
}

func (c *RedisCache) Put(ctx context.Context, id string, norm Normalization) error {
	return c.cache.Set(ctx, "normalize:"+id, norm, c.ttl)
}
