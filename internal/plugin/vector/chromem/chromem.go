// Package chromem is the embedded vector index. Each user gets their own
// collection, so a query can never see another user's vectors.
package chromem

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/config"
	registryvector "github.com/chirino/coaching-service/internal/registry/vector"
	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "chromem",
		Loader: load,
	})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.ChromemPath == "" {
		return New(), nil
	}
	log.Info("Opening persistent chromem index", "path", cfg.ChromemPath)
	return NewPersistent(cfg.ChromemPath)
}

// Store is a VectorStore backed by chromem-go.
type Store struct {
	db *chromem.DB
}

// New returns an in-memory index.
func New() *Store {
	return &Store{db: chromem.NewDB()}
}

// NewPersistent opens (or creates) an index persisted under path.
func NewPersistent(path string) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("chromem: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "chromem" }

func collectionName(userID string) string {
	return "user_" + userID
}

func (s *Store) collection(userID string) (*chromem.Collection, error) {
	name := collectionName(userID)
	if col := s.db.GetCollection(name, nil); col != nil {
		return col, nil
	}
	col, err := s.db.GetOrCreateCollection(name, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %s: %w", name, err)
	}
	return col, nil
}

func (s *Store) Insert(ctx context.Context, id uuid.UUID, vector []float32, meta registryvector.Metadata) error {
	if len(vector) == 0 {
		return fmt.Errorf("chromem: empty vector for %s", id)
	}
	col, err := s.collection(meta.UserID)
	if err != nil {
		return err
	}
	// chromem normalizes in place.
	vec := make([]float32, len(vector))
	copy(vec, vector)

	doc := chromem.Document{
		ID:        id.String(),
		Content:   meta.TurnID.String(),
		Embedding: vec,
		Metadata: map[string]string{
			"user_id":    meta.UserID,
			"session_id": meta.SessionID.String(),
			"turn_id":    meta.TurnID.String(),
			"role":       meta.Role,
			"created_at": meta.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: add %s: %w", id, err)
	}
	return nil
}

func (s *Store) Nearest(ctx context.Context, vector []float32, k int, filter registryvector.Filter) ([]registryvector.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	col := s.db.GetCollection(collectionName(filter.UserID), nil)
	if col == nil {
		return nil, nil
	}
	// QueryEmbedding rejects nResults larger than the collection.
	n := min(k, col.Count())
	if n == 0 {
		return nil, nil
	}
	var where map[string]string
	if filter.SessionID != uuid.Nil {
		where = map[string]string{"session_id": filter.SessionID.String()}
	}
	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}
	hits := make([]registryvector.Hit, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			log.Warn("Skipping chromem document with invalid id", "id", r.ID)
			continue
		}
		turnID, _ := uuid.Parse(r.Metadata["turn_id"])
		hits = append(hits, registryvector.Hit{ID: id, TurnID: turnID, Score: float64(r.Similarity)})
	}
	return hits, nil
}

func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	col := s.db.GetCollection(collectionName(userID), nil)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, id.String()); err != nil {
		return fmt.Errorf("chromem: delete %s: %w", id, err)
	}
	return nil
}
