package embed

import (
	"context"
	"errors"
	"fmt"
)

// ErrDisabled is returned by the "none" embedder.
var ErrDisabled = errors.New("embedding is disabled")

// Embedder turns conversation turns and memory queries into vectors of one
// embedding space. Memory records and queries only compare when both come from
// the same ModelName and Dimension, and the vector index schema is created for
// that dimension, so an Embedder must never return a vector of another length.
type Embedder interface {
	// EmbedTexts returns a vector embedding for each input text, in the same order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// ModelName identifies the embedding space. It is stored on every memory
	// record and keys the embedding cache.
	ModelName() string
	// Dimension is the length of every returned vector.
	Dimension() int
}

// DimensionMismatchError reports a vector that does not fit the configured
// embedding space. It is a configuration error and is never retried.
type DimensionMismatchError struct {
	Model string
	Got   int
	Want  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedder %s returned %d dimensions, configured space has %d", e.Model, e.Got, e.Want)
}

// CheckDimension verifies that vector belongs to e's embedding space.
func CheckDimension(e Embedder, vector []float32) error {
	if len(vector) != e.Dimension() {
		return &DimensionMismatchError{Model: e.ModelName(), Got: len(vector), Want: e.Dimension()}
	}
	return nil
}

// VerifyDimension fails when e was built for a different dimension than the
// vector index expects.
func VerifyDimension(e Embedder, want int) error {
	if e.Dimension() != want {
		return &DimensionMismatchError{Model: e.ModelName(), Got: e.Dimension(), Want: want}
	}
	return nil
}

// Loader creates an Embedder from config.
type Loader func(ctx context.Context) (Embedder, error)

// Plugin represents an embedder plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an embedder plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered embedder plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named embedder plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown embedder %q; valid: %v", name, Names())
}
