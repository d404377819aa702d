package memory_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chirino/coaching-service/internal/memory"
	"github.com/chirino/coaching-service/internal/model"
	"github.com/chirino/coaching-service/internal/plugin/cache/ristretto"
	"github.com/chirino/coaching-service/internal/plugin/embed/local"
	"github.com/chirino/coaching-service/internal/plugin/store/gormstore"
	"github.com/chirino/coaching-service/internal/plugin/vector/chromem"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/chirino/coaching-service/internal/testutil/teststore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const dim = 384

type countingEmbedder struct {
	inner *local.Embedder
	calls atomic.Int32
	fail  error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail != nil {
		return nil, e.fail
	}
	vecs, err := e.inner.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *countingEmbedder) EmbeddingModel() string  { return e.inner.ModelName() }
func (e *countingEmbedder) EmbeddingDimension() int { return e.inner.Dimension() }

type fixture struct {
	store    *gormstore.Store
	embedder *countingEmbedder
	memory   *memory.Store
}

func newFixture(t *testing.T, opts memory.Options) *fixture {
	t.Helper()
	st := teststore.Open(t)
	emb := &countingEmbedder{inner: local.New(dim)}
	return &fixture{
		store:    st,
		embedder: emb,
		memory:   memory.New(st, chromem.New(), emb, opts),
	}
}

func (f *fixture) turn(t *testing.T, userID, content string) *model.Turn {
	t.Helper()
	ctx := context.Background()
	sess, err := f.store.CreateSession(ctx, registrystore.CreateSessionRequest{UserID: userID, AIModel: "openai"})
	require.NoError(t, err)
	turn, err := f.store.AppendTurn(ctx, registrystore.AppendTurnRequest{
		SessionID: sess.ID,
		Role:      model.RoleUser,
		Content:   content,
	})
	require.NoError(t, err)
	return turn
}

func TestUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t, memory.Options{ExcerptRunes: 10})
	ctx := context.Background()
	turn := f.turn(t, "alice", "I keep freezing up when I negotiate salary")

	first, err := f.memory.Upsert(ctx, "alice", turn)
	require.NoError(t, err)
	require.Equal(t, memory.RecordID(turn.ID), first.ID)
	require.Equal(t, "I keep fre", first.TextExcerpt)
	require.Equal(t, dim, first.Dimension)
	require.Equal(t, "hashed-bow-v1", first.Model)

	second, err := f.memory.Upsert(ctx, "alice", turn)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.EqualValues(t, 1, f.embedder.calls.Load())
}

func TestUpsertWrapsEmbeddingErrors(t *testing.T) {
	f := newFixture(t, memory.Options{})
	boom := errors.New("provider down")
	f.embedder.fail = boom
	turn := f.turn(t, "alice", "hello")

	_, err := f.memory.Upsert(context.Background(), "alice", turn)
	var failure *memory.EmbeddingFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, turn.ID, failure.TurnID)
	require.ErrorIs(t, err, boom)
}

func TestQueryRanksAndExcludes(t *testing.T) {
	f := newFixture(t, memory.Options{})
	ctx := context.Background()

	salary := f.turn(t, "alice", "negotiating my salary with my manager")
	speaking := f.turn(t, "alice", "public speaking makes me nervous")
	exact := f.turn(t, "alice", "how should I ask for a promotion")
	for _, turn := range []*model.Turn{salary, speaking, exact} {
		_, err := f.memory.Upsert(ctx, "alice", turn)
		require.NoError(t, err)
	}

	matches, err := f.memory.Query(ctx, "alice", "how should I ask for a promotion", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, exact.ID, matches[0].Record.SourceTurnID)
	require.InDelta(t, 1.0, matches[0].Score, 1e-4)
	require.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

	matches, err = f.memory.Query(ctx, "alice", "how should I ask for a promotion", 3, exact.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		require.NotEqual(t, exact.ID, m.Record.SourceTurnID)
	}
}

func TestQueryTieGoesToMostRecent(t *testing.T) {
	for run := range 20 {
		f := newFixture(t, memory.Options{})
		ctx := context.Background()
		tick := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
		f.store.SetClock(func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		})

		var newest *model.Turn
		for range 6 {
			newest = f.turn(t, "alice", "ok")
			_, err := f.memory.Upsert(ctx, "alice", newest)
			require.NoError(t, err)
		}

		matches, err := f.memory.Query(ctx, "alice", "ok", 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		require.Equal(t, newest.ID, matches[0].Record.SourceTurnID, "run %d", run)
	}
}

func TestSearchWithinSession(t *testing.T) {
	f := newFixture(t, memory.Options{})
	ctx := context.Background()

	sess, err := f.store.CreateSession(ctx, registrystore.CreateSessionRequest{UserID: "alice", AIModel: "openai"})
	require.NoError(t, err)
	inSession, err := f.store.AppendTurn(ctx, registrystore.AppendTurnRequest{
		SessionID: sess.ID, Role: model.RoleUser, Content: "cold calling a CFO",
	})
	require.NoError(t, err)
	elsewhere := f.turn(t, "alice", "cold calling a CFO tomorrow")
	for _, turn := range []*model.Turn{inSession, elsewhere} {
		_, err := f.memory.Upsert(ctx, "alice", turn)
		require.NoError(t, err)
	}

	all, err := f.memory.Search(ctx, memory.SearchRequest{UserID: "alice", Text: "cold calling a CFO tomorrow", K: 5})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, elsewhere.ID, all[0].Record.SourceTurnID)

	scoped, err := f.memory.Search(ctx, memory.SearchRequest{
		UserID: "alice", Text: "cold calling a CFO tomorrow", K: 5, SessionID: sess.ID,
	})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	require.Equal(t, inSession.ID, scoped[0].Record.SourceTurnID)
}

func TestQueryIsScopedToUser(t *testing.T) {
	f := newFixture(t, memory.Options{})
	ctx := context.Background()
	_, err := f.memory.Upsert(ctx, "alice", f.turn(t, "alice", "my secret career plan"))
	require.NoError(t, err)

	matches, err := f.memory.Query(ctx, "bob", "my secret career plan", 4)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestQueryEmptyCorpusAndZeroK(t *testing.T) {
	f := newFixture(t, memory.Options{})
	ctx := context.Background()

	matches, err := f.memory.Query(ctx, "alice", "anything", 4)
	require.NoError(t, err)
	require.NotNil(t, matches)
	require.Empty(t, matches)

	matches, err = f.memory.Query(ctx, "alice", "anything", 0)
	require.NoError(t, err)
	require.Empty(t, matches)
	require.EqualValues(t, 1, f.embedder.calls.Load())
}

func TestQueryUsesEmbeddingCache(t *testing.T) {
	cache, err := ristretto.New(1<<20, time.Hour)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	f := newFixture(t, memory.Options{Cache: cache})
	ctx := context.Background()

	for range 3 {
		_, err := f.memory.Query(ctx, "alice", "repeat question", 4)
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, f.embedder.calls.Load())
}

func TestRecordIDIsDeterministic(t *testing.T) {
	id := uuid.New()
	require.Equal(t, memory.RecordID(id), memory.RecordID(id))
	require.NotEqual(t, memory.RecordID(id), memory.RecordID(uuid.New()))
}

func TestExcerpt(t *testing.T) {
	require.Equal(t, "héll", memory.Excerpt("héllo", 4))
	require.Equal(t, "héllo", memory.Excerpt("héllo", 5))
	require.Equal(t, "héllo", memory.Excerpt("héllo", 0))
}
