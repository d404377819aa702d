// Package pgvector keeps memory vectors in Postgres next to the record store.
package pgvector

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/config"
	registrymigrate "github.com/chirino/coaching-service/internal/registry/migrate"
	registryvector "github.com/chirino/coaching-service/internal/registry/vector"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// schemaSQL creates the embeddings table for a fixed dimension. The vector
// column type carries the dimension, so changing it needs a new table.
//
// There is no approximate (HNSW) index: it filters after the scan, so a user
// with few vectors among many users could get fewer than k hits. Searches
// scan the user's rows exactly through the user_id index instead.
func schemaSQL(dim int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_embeddings (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL,
    session_id  UUID NOT NULL,
    turn_id     UUID NOT NULL,
    role        TEXT NOT NULL,
    embedding   vector(%d) NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_embeddings_user ON memory_embeddings (user_id, session_id);
DROP INDEX IF EXISTS idx_memory_embeddings_hnsw;
`, dim)
}

type pgvectorMigrator struct{}

func (m *pgvectorMigrator) Name() string { return "pgvector" }
func (m *pgvectorMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "pgvector" || cfg.DBURL == "" {
		return nil
	}
	log.Info("Running migration", "name", m.Name(), "dimension", cfg.EmbeddingDimensions)
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}
	return db.WithContext(ctx).Exec(schemaSQL(cfg.EmbeddingDimensions)).Error
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &pgvectorMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgvector: missing config in context")
	}
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return New(db), nil
}

func openDB(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
}

// Migrate creates the embeddings table on db for vectors of dim dimensions.
func Migrate(ctx context.Context, db *gorm.DB, dim int) error {
	return db.WithContext(ctx).Exec(schemaSQL(dim)).Error
}

// Store implements VectorStore using the pgvector extension.
type Store struct {
	db *gorm.DB
}

// New wraps an open connection. The schema must already exist.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string { return "pgvector" }

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Insert(ctx context.Context, id uuid.UUID, vector []float32, meta registryvector.Metadata) error {
	vec := pgvec.NewVector(vector)
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO memory_embeddings (id, user_id, session_id, turn_id, role, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?::vector, ?)
		ON CONFLICT (id)
		DO UPDATE SET embedding = EXCLUDED.embedding`,
		id, meta.UserID, meta.SessionID, meta.TurnID, meta.Role, vec, meta.CreatedAt.UTC(),
	).Error
}

func (s *Store) Nearest(ctx context.Context, vector []float32, k int, filter registryvector.Filter) ([]registryvector.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := pgvec.NewVector(vector)
	where := "user_id = ?"
	args := []any{vec, filter.UserID}
	if filter.SessionID != uuid.Nil {
		where += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	args = append(args, vec, k)
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, turn_id, 1 - (embedding <=> ?::vector) AS score
		FROM memory_embeddings
		WHERE `+where+`
		ORDER BY embedding <=> ?::vector, created_at DESC, id
		LIMIT ?`,
		args...,
	).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []registryvector.Hit
	for rows.Next() {
		var h registryvector.Hit
		if err := rows.Scan(&h.ID, &h.TurnID, &h.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	return s.db.WithContext(ctx).Exec(
		"DELETE FROM memory_embeddings WHERE id = ? AND user_id = ?", id, userID,
	).Error
}
