// Package memory embeds past turns and retrieves the ones most similar to a
// new message.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/metrics"
	"github.com/chirino/coaching-service/internal/model"
	registrycache "github.com/chirino/coaching-service/internal/registry/cache"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	registryvector "github.com/chirino/coaching-service/internal/registry/vector"
	"github.com/google/uuid"
)

// recordNamespace seeds deterministic record ids.
var recordNamespace = uuid.MustParse("5b0c7a0e-7f7e-4b5e-9a51-2f4c0c6f8d21")

// RecordID returns the memory record id for a turn. Upserting the same turn
// twice therefore writes the same vector id.
func RecordID(turnID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(recordNamespace, turnID[:])
}

// EmbeddingFailure wraps any error that prevented a turn from being embedded
// and stored.
type EmbeddingFailure struct {
	TurnID uuid.UUID
	Cause  error
}

func (e *EmbeddingFailure) Error() string {
	return fmt.Sprintf("embedding turn %s failed: %v", e.TurnID, e.Cause)
}

func (e *EmbeddingFailure) Unwrap() error { return e.Cause }

// Embedder produces vectors in a single embedding space. *gateway.Gateway
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbeddingModel() string
	EmbeddingDimension() int
}

// Records is the part of the record store memory needs.
type Records interface {
	GetMemoryRecordByTurn(ctx context.Context, turnID uuid.UUID) (*model.MemoryRecord, error)
	CreateMemoryRecord(ctx context.Context, rec *model.MemoryRecord) (*model.MemoryRecord, bool, error)
	GetMemoryRecords(ctx context.Context, ids []uuid.UUID) ([]model.MemoryRecord, error)
}

// Match is one query result.
type Match struct {
	Record model.MemoryRecord
	Score  float64
}

// Options tunes a Store.
type Options struct {
	// Cache memoizes embeddings; nil disables caching.
	Cache    registrycache.EmbeddingCache
	CacheTTL time.Duration
	// ExcerptRunes caps the stored text excerpt. Zero keeps the full text.
	ExcerptRunes int
}

// Store keeps the record rows and the vector index in step.
type Store struct {
	records  Records
	index    registryvector.VectorStore
	embedder Embedder
	opts     Options
}

func New(records Records, index registryvector.VectorStore, embedder Embedder, opts Options) *Store {
	return &Store{records: records, index: index, embedder: embedder, opts: opts}
}

// Upsert embeds turn and stores it as a memory for userID. A turn that already
// has a record is returned as is, without calling the embedder.
func (s *Store) Upsert(ctx context.Context, userID string, turn *model.Turn) (*model.MemoryRecord, error) {
	existing, err := s.records.GetMemoryRecordByTurn(ctx, turn.ID)
	if err == nil {
		metrics.IncMemoryUpsert("exists")
		return existing, nil
	}
	var notFound *registrystore.NotFoundError
	if !errors.As(err, &notFound) {
		metrics.IncMemoryUpsert("error")
		return nil, &EmbeddingFailure{TurnID: turn.ID, Cause: err}
	}

	rec, err := s.upsert(ctx, userID, turn)
	if err != nil {
		metrics.IncMemoryUpsert("error")
		return nil, &EmbeddingFailure{TurnID: turn.ID, Cause: err}
	}
	metrics.IncMemoryUpsert("created")
	return rec, nil
}

func (s *Store) upsert(ctx context.Context, userID string, turn *model.Turn) (*model.MemoryRecord, error) {
	vector, err := s.embed(ctx, turn.Content)
	if err != nil {
		return nil, err
	}
	id := RecordID(turn.ID)
	meta := registryvector.Metadata{
		UserID:    userID,
		SessionID: turn.SessionID,
		TurnID:    turn.ID,
		Role:      string(turn.Role),
		CreatedAt: turn.CreatedAt,
	}
	// The vector goes in first; a hit without a record row is skipped by Query.
	if err := s.index.Insert(ctx, id, vector, meta); err != nil {
		return nil, fmt.Errorf("index insert: %w", err)
	}
	rec := &model.MemoryRecord{
		ID:           id,
		UserID:       userID,
		SessionID:    turn.SessionID,
		SourceTurnID: turn.ID,
		Role:         turn.Role,
		TextExcerpt:  Excerpt(turn.Content, s.opts.ExcerptRunes),
		Embedding:    vector,
		Model:        s.embedder.EmbeddingModel(),
		Dimension:    len(vector),
		CreatedAt:    turn.CreatedAt,
	}
	stored, created, err := s.records.CreateMemoryRecord(ctx, rec)
	if err != nil {
		if delErr := s.index.Delete(ctx, userID, id); delErr != nil {
			log.Warn("Failed to remove orphaned memory vector", "id", id, "err", delErr)
		}
		return nil, fmt.Errorf("create record: %w", err)
	}
	if !created {
		log.Debug("Memory record already existed", "turn", turn.ID)
	}
	return stored, nil
}

// SearchRequest scopes a memory search.
type SearchRequest struct {
	UserID string
	Text   string
	K      int
	// SessionID restricts the search to one session when set.
	SessionID uuid.UUID
	// Exclude skips records sourced from these turns.
	Exclude []uuid.UUID
}

// Query returns up to k memories of userID most similar to text. Records
// sourced from any turn in exclude are skipped.
func (s *Store) Query(ctx context.Context, userID, text string, k int, exclude ...uuid.UUID) ([]Match, error) {
	return s.Search(ctx, SearchRequest{UserID: userID, Text: text, K: k, Exclude: exclude})
}

// Search returns up to req.K matches ordered by similarity, most recent first
// among equal scores.
func (s *Store) Search(ctx context.Context, req SearchRequest) ([]Match, error) {
	if req.K <= 0 {
		return []Match{}, nil
	}
	vector, err := s.embed(ctx, req.Text)
	if err != nil {
		metrics.IncMemoryQuery("error")
		return nil, err
	}
	hits, err := s.nearest(ctx, vector, req.K+len(req.Exclude), registryvector.Filter{
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		metrics.IncMemoryQuery("error")
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		metrics.IncMemoryQuery("empty")
		return []Match{}, nil
	}

	ids := make([]uuid.UUID, len(hits))
	scores := make(map[uuid.UUID]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}
	records, err := s.records.GetMemoryRecords(ctx, ids)
	if err != nil {
		metrics.IncMemoryQuery("error")
		return nil, err
	}

	excluded := make(map[uuid.UUID]bool, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = true
	}
	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		if rec.UserID != req.UserID || excluded[rec.SourceTurnID] {
			continue
		}
		if req.SessionID != uuid.Nil && rec.SessionID != req.SessionID {
			continue
		}
		matches = append(matches, Match{Record: rec, Score: scores[rec.ID]})
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return b.Record.CreatedAt.Compare(a.Record.CreatedAt)
	})
	if len(matches) > req.K {
		matches = matches[:req.K]
	}
	metrics.IncMemoryQuery("ok")
	return matches, nil
}

// nearest fetches at least want hits. An index orders equal scores
// arbitrarily, so when the hit at the cut-off ties with the last one fetched
// the fetch widens until the whole tie group is in hand.
func (s *Store) nearest(ctx context.Context, vector []float32, want int, filter registryvector.Filter) ([]registryvector.Hit, error) {
	fetch := want
	for {
		hits, err := s.index.Nearest(ctx, vector, fetch, filter)
		if err != nil {
			return nil, err
		}
		if len(hits) < fetch || hits[len(hits)-1].Score < hits[want-1].Score {
			return hits, nil
		}
		fetch *= 2
	}
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	cache := s.opts.Cache
	if cache == nil || !cache.Available() {
		return s.embedder.Embed(ctx, text)
	}
	key := registrycache.EmbeddingKey(s.embedder.EmbeddingModel(), text)
	if vec, err := cache.Get(ctx, key); err != nil {
		log.Warn("Embedding cache read failed", "err", err)
	} else if len(vec) == s.embedder.EmbeddingDimension() {
		metrics.IncCache(true)
		return vec, nil
	}
	metrics.IncCache(false)

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, key, vec, s.opts.CacheTTL); err != nil {
		log.Warn("Embedding cache write failed", "err", err)
	}
	return vec, nil
}

// Excerpt truncates text to at most n runes. n <= 0 returns text unchanged.
func Excerpt(text string, n int) string {
	if n <= 0 {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
