package resolve

import (
	"context"
	"sync"
	"time"

	redisinfra "github.com/openmedi/medirec/internal/infrastructure/database/redis"
)

// Cache stores resolution verdicts keyed by cleaned ingredient name.  Failed
// resolutions are cached as sentinel verdicts so a name that errored once is
// not retried within the cache's lifetime.
type Cache interface {
	Get(ctx context.Context, name string) (Resolution, bool, error)
	Put(ctx context.Context, name string, res Resolution) error
}

// MemoryCache is the per-run in-process cache.  Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Resolution
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Resolution)}
}

func (c *MemoryCache) Get(_ context.Context, name string) (Resolution, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[name]
	return res, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, name string, res Resolution) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = res
	return nil
}

// Len reports the number of cached verdicts.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
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

func (c *RedisCache) Get(ctx context.Context, name string) (Resolution, bool, error) {
	var res Resolution
	err := c.cache.Get(ctx, "resolve:"+name, &res)
	if err == redisinfra.ErrCacheMiss {
		return Resolution{}, false, nil
	}
	if err != nil {
		return Resolution{}, false, err
	}
	return res, true, nil
}

func (c *RedisCache) Put(ctx context.Context, name string, res Resolution) error {
	return c.cache.Set(ctx, "resolve:"+name, res, c.ttl)
}
