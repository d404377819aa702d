package disabled

import (
	"context"

	"github.com/chirino/coaching-service/internal/config"
	"github.com/chirino/coaching-service/internal/registry/embed"
)

func init() {
	embed.Register(embed.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (embed.Embedder, error) {
			dim := 0
			if cfg := config.FromContext(ctx); cfg != nil {
				dim = cfg.EmbeddingDimensions
			}
			return &disabledEmbedder{dim: dim}, nil
		},
	})
}

// disabledEmbedder keeps the configured dimension so vector indexes can still be
// created, but refuses to embed. Memory upserts fail and are dropped by the task processor.
type disabledEmbedder struct {
	dim int
}

func (d *disabledEmbedder) EmbedTexts(_ context.Context, _ []string) ([][]float32, error) {
	return nil, embed.ErrDisabled
}

func (d *disabledEmbedder) ModelName() string { return "none" }
func (d *disabledEmbedder) Dimension() int    { return d.dim }

var _ embed.Embedder = (*disabledEmbedder)(nil)
