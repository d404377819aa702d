package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metadata is stored alongside every vector and used for filtering and exclusion.
type Metadata struct {
	UserID    string
	SessionID uuid.UUID
	TurnID    uuid.UUID
	Role      string
	CreatedAt time.Time
}

// Filter scopes a nearest-neighbour query. UserID is always applied; a zero
// SessionID matches every session.
type Filter struct {
	UserID    string
	SessionID uuid.UUID
}

// Hit is one nearest-neighbour result. Score is cosine similarity in [-1, 1].
type Hit struct {
	ID     uuid.UUID
	TurnID uuid.UUID
	Score  float64
}

// VectorStore is the vector index behind the memory store.
type VectorStore interface {
	// Insert stores vector under id, replacing any previous vector with the same id.
	Insert(ctx context.Context, id uuid.UUID, vector []float32, meta Metadata) error
	// Nearest returns up to k hits matching filter, most similar first and most
	// recent first among equal scores where the backend can order them.
	// An empty index yields no hits and no error.
	Nearest(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)
	// Delete removes the user's vector stored under id, if any.
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	// Name returns the plugin name (e.g. "chromem", "qdrant", "pgvector").
	Name() string
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}
