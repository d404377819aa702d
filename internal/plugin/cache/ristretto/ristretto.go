// Package ristretto is an in-process embedding cache bounded by memory cost.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/coaching-service/internal/config"
	registrycache "github.com/chirino/coaching-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "ristretto",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.EmbeddingCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("ristretto cache: missing config in context")
	}
	return New(cfg.CacheMaxCost, cfg.CacheTTL)
}

// Cache wraps a ristretto cache keyed by string.
type Cache struct {
	cache *ristretto.Cache[string, []float32]
	ttl   time.Duration
}

// New creates a cache holding at most maxCost bytes of vectors.
func New(maxCost int64, ttl time.Duration) (*Cache, error) {
	if maxCost <= 0 {
		return nil, fmt.Errorf("ristretto cache: max cost must be positive, got %d", maxCost)
	}
	// Ten counters per expected item; items are assumed to be ~1.5KiB.
	counters := max(maxCost/1536*10, 1000)
	c, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto cache: %w", err)
	}
	return &Cache{cache: c, ttl: ttl}, nil
}

func (c *Cache) Available() bool { return true }

func (c *Cache) Get(_ context.Context, key string) ([]float32, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

func (c *Cache) Set(_ context.Context, key string, vector []float32, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	c.cache.SetWithTTL(key, v, int64(4*len(v)), ttl)
	// Make the write visible to the next Get.
	c.cache.Wait()
	return nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}

var _ registrycache.EmbeddingCache = (*Cache)(nil)
