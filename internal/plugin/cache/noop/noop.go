package noop

import (
	"context"
	"time"

	"github.com/chirino/coaching-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.EmbeddingCache, error) {
			return Cache{}, nil
		},
	})
}

// Cache never stores anything.
type Cache struct{}

func (Cache) Available() bool { return false }
func (Cache) Get(context.Context, string) ([]float32, error) {
	return nil, nil
}
func (Cache) Set(context.Context, string, []float32, time.Duration) error { return nil }

var _ cache.EmbeddingCache = Cache{}
