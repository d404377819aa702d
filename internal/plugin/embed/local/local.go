// Package local is a dependency-free embedder: signed feature hashing over
// word unigrams and bigrams, L2-normalized. Similar wording yields similar vectors,
// which is enough for single-node deployments and tests.
package local

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/chirino/coaching-service/internal/config"
	registryembed "github.com/chirino/coaching-service/internal/registry/embed"
)

const (
	modelName        = "hashed-bow-v1"
	defaultDimension = 384
	bigramWeight     = 0.5
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registryembed.Embedder, error) {
			dim := defaultDimension
			if cfg := config.FromContext(ctx); cfg != nil && cfg.EmbeddingDimensions > 0 {
				dim = cfg.EmbeddingDimensions
			}
			return New(dim), nil
		},
	})
}

// Embedder hashes tokens into a fixed number of buckets.
type Embedder struct {
	dim int
}

// New returns an Embedder producing vectors of length dim.
func New(dim int) *Embedder {
	return &Embedder{dim: dim}
}

func (e *Embedder) ModelName() string { return modelName }
func (e *Embedder) Dimension() int    { return e.dim }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.embedOne(text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

func (e *Embedder) embedOne(text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		trimmed := strings.TrimSpace(strings.ToLower(text))
		if trimmed == "" {
			return nil, fmt.Errorf("local embedder: empty text")
		}
		tokens = []string{trimmed}
	}

	vector := make([]float64, e.dim)
	for i, tok := range tokens {
		e.add(vector, tok, 1)
		if i > 0 {
			e.add(vector, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	out := make([]float32, e.dim)
	if norm == 0 {
		// Opposite-signed collisions cancelled out; fall back to a unit vector.
		out[0] = 1
		return out, nil
	}
	inv := 1 / math.Sqrt(norm)
	for i, v := range vector {
		out[i] = float32(v * inv)
	}
	return out, nil
}

// add hashes feature into a bucket; one hash bit picks the sign so that
// collisions cancel in expectation instead of accumulating.
func (e *Embedder) add(vector []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vector[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r))
	})
}

var _ registryembed.Embedder = (*Embedder)(nil)
