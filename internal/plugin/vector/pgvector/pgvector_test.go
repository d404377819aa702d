package pgvector

import (
	"context"
	"testing"
	"time"

	registryvector "github.com/chirino/coaching-service/internal/registry/vector"
	"github.com/chirino/coaching-service/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearestIsUserScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	db, err := openDB(testpg.StartPostgres(t))
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, 3))
	store := New(db)
	t.Cleanup(func() { _ = store.Close() })

	meta := func(user string) registryvector.Metadata {
		return registryvector.Metadata{
			UserID:    user,
			SessionID: uuid.New(),
			TurnID:    uuid.New(),
			Role:      "user",
			CreatedAt: time.Now(),
		}
	}
	exact, near, far, foreign := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	exactMeta := meta("alice")
	require.NoError(t, store.Insert(ctx, exact, []float32{1, 0, 0}, exactMeta))
	require.NoError(t, store.Insert(ctx, near, []float32{0.9, 0.1, 0}, meta("alice")))
	require.NoError(t, store.Insert(ctx, far, []float32{0, 0, 1}, meta("alice")))
	require.NoError(t, store.Insert(ctx, foreign, []float32{1, 0, 0}, meta("bob")))

	hits, err := store.Nearest(ctx, []float32{1, 0, 0}, 2, registryvector.Filter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, exact, hits[0].ID)
	assert.Equal(t, exactMeta.TurnID, hits[0].TurnID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, near, hits[1].ID)

	// Deleting under another user is a no-op.
	require.NoError(t, store.Delete(ctx, "bob", exact))
	require.NoError(t, store.Delete(ctx, "alice", exact))
	hits, err = store.Nearest(ctx, []float32{1, 0, 0}, 5, registryvector.Filter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near, hits[0].ID)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := openDB(testpg.StartPostgres(t))
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, 3))
	require.NoError(t, Migrate(ctx, db, 3))
	store := New(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNearestFindsSparseUserAmongMany(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now()

	// Other users crowd the query's neighbourhood.
	for i := range 1000 {
		require.NoError(t, store.Insert(ctx, uuid.New(), []float32{1, float32(i%7) * 0.01, 0}, registryvector.Metadata{
			UserID: "user-" + string(rune('a'+i%20)), SessionID: uuid.New(), TurnID: uuid.New(), Role: "user", CreatedAt: now,
		}))
	}
	var mine []uuid.UUID
	for i := range 3 {
		id := uuid.New()
		mine = append(mine, id)
		require.NoError(t, store.Insert(ctx, id, []float32{0, 1, float32(i) * 0.1}, registryvector.Metadata{
			UserID: "alice", SessionID: uuid.New(), TurnID: uuid.New(), Role: "user", CreatedAt: now,
		}))
	}

	hits, err := store.Nearest(ctx, []float32{1, 0, 0}, 3, registryvector.Filter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	got := []uuid.UUID{hits[0].ID, hits[1].ID, hits[2].ID}
	assert.ElementsMatch(t, mine, got)
}

func TestNearestBreaksTiesByRecency(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Now().Add(-time.Hour)

	var newest uuid.UUID
	for i := range 6 {
		newest = uuid.New()
		require.NoError(t, store.Insert(ctx, newest, []float32{1, 0, 0}, registryvector.Metadata{
			UserID: "alice", SessionID: uuid.New(), TurnID: uuid.New(), Role: "user",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	hits, err := store.Nearest(ctx, []float32{1, 0, 0}, 1, registryvector.Filter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, newest, hits[0].ID)
}

func TestNearestFiltersBySession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	session := uuid.New()
	inSession := uuid.New()
	require.NoError(t, store.Insert(ctx, inSession, []float32{0, 1, 0}, registryvector.Metadata{
		UserID: "alice", SessionID: session, TurnID: uuid.New(), Role: "user", CreatedAt: time.Now(),
	}))
	require.NoError(t, store.Insert(ctx, uuid.New(), []float32{1, 0, 0}, registryvector.Metadata{
		UserID: "alice", SessionID: uuid.New(), TurnID: uuid.New(), Role: "user", CreatedAt: time.Now(),
	}))

	hits, err := store.Nearest(ctx, []float32{1, 0, 0}, 5, registryvector.Filter{UserID: "alice", SessionID: session})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, inSession, hits[0].ID)
}

func TestSchemaCarriesDimension(t *testing.T) {
	schema := schemaSQL(1536)
	assert.Contains(t, schema, "vector(1536)")
	assert.Contains(t, schema, "DROP INDEX IF EXISTS idx_memory_embeddings_hnsw")
	assert.NotContains(t, schema, "USING hnsw")
}
