package coaching

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chirino/coaching-service/internal/gateway"
	"github.com/chirino/coaching-service/internal/memory"
	"github.com/chirino/coaching-service/internal/model"
	"github.com/chirino/coaching-service/internal/plugin/store/gormstore"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/chirino/coaching-service/internal/retry"
	"github.com/chirino/coaching-service/internal/testutil/teststore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProvider answers with respond, recording every prompt it sees.
type testProvider struct {
	mu      sync.Mutex
	prompts []registryprovider.Prompt
	respond func(ctx context.Context, p registryprovider.Prompt) (*registryprovider.Completion, error)
}

func (p *testProvider) Name() string  { return "openai" }
func (p *testProvider) Model() string { return "gpt-test" }
func (p *testProvider) Complete(ctx context.Context, prompt registryprovider.Prompt, _ registryprovider.Options) (*registryprovider.Completion, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	respond := p.respond
	p.mu.Unlock()
	return respond(ctx, prompt)
}

func (p *testProvider) lastPrompt() registryprovider.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[len(p.prompts)-1]
}

func echo(_ context.Context, p registryprovider.Prompt) (*registryprovider.Completion, error) {
	last := p.Messages[len(p.Messages)-1].Content
	return &registryprovider.Completion{Text: "coach: " + last, FinishReason: "stop", Model: "gpt-test", TokensUsed: 7}, nil
}

type recordingScheduler struct {
	mu    sync.Mutex
	turns []uuid.UUID
}

func (s *recordingScheduler) ScheduleMemoryUpsert(_ context.Context, _ string, turnID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turnID)
	return nil
}

func (s *recordingScheduler) scheduled() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.turns...)
}

type stubRecaller struct {
	matches []memory.Match
	err     error
	exclude []uuid.UUID
	onQuery func()
}

func (r *stubRecaller) Query(ctx context.Context, _, _ string, _ int, exclude ...uuid.UUID) ([]memory.Match, error) {
	r.exclude = exclude
	if r.onQuery != nil {
		r.onQuery()
		return nil, ctx.Err()
	}
	return r.matches, r.err
}

type harness struct {
	store     *gormstore.Store
	provider  *testProvider
	scheduler *recordingScheduler
	recaller  *stubRecaller
	coach     *Coach
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := teststore.Open(t)
	p := &testProvider{respond: echo}
	gw := gateway.New([]registryprovider.Provider{p}, nil, gateway.Settings{
		Timeout: 50 * time.Millisecond,
		Retry:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	h := &harness{
		store:     st,
		provider:  p,
		scheduler: &recordingScheduler{},
		recaller:  &stubRecaller{},
	}
	h.coach = New(st, gw, h.recaller, h.scheduler, Settings{
		DefaultModel:  "openai",
		RecencyWindow: 10,
		MemoryTopK:    4,
		TurnTimeout:   time.Second,
		Temperature:   0.7,
		MaxTokens:     2000,
	})
	return h
}

func (h *harness) session(t *testing.T, userID string, lessonRef *string) *model.Session {
	t.Helper()
	s, err := h.store.CreateSession(context.Background(), registrystore.CreateSessionRequest{
		UserID:    userID,
		AIModel:   "openai",
		LessonRef: lessonRef,
	})
	require.NoError(t, err)
	return s
}

func (h *harness) turns(t *testing.T, sessionID uuid.UUID) []model.Turn {
	t.Helper()
	turns, err := h.store.RecentTurns(context.Background(), sessionID, 100)
	require.NoError(t, err)
	return turns
}

func TestHandleTurnPersistsBothTurnsAndSchedulesUpserts(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, "alice", nil)

	res, err := h.coach.HandleTurn(context.Background(), sess.ID, "alice", "How do I open a salary talk?", "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, res.UserTurn.Role)
	assert.Equal(t, "coach: How do I open a salary talk?", res.AssistantTurn.Content)
	require.NotNil(t, res.AssistantTurn.AIModel)
	assert.Equal(t, "openai", *res.AssistantTurn.AIModel)
	require.NotNil(t, res.AssistantTurn.TokensUsed)
	assert.Equal(t, 7, *res.AssistantTurn.TokensUsed)

	turns := h.turns(t, sess.ID)
	require.Len(t, turns, 2)
	assert.Equal(t, int64(1), turns[0].Seq)
	assert.Equal(t, int64(2), turns[1].Seq)
	assert.Equal(t, []uuid.UUID{res.UserTurn.ID, res.AssistantTurn.ID}, h.scheduler.scheduled())
}

func TestHandleTurnPromptOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveLesson(ctx, &model.Lesson{
		ID:         "negotiation-101",
		Title:      "Negotiating a raise",
		LessonType: "roleplay",
		Scenario:   "Your annual review is next week.",
		Objectives: []string{"Anchor high", "Stay calm"},
	}))
	ref := "negotiation-101"
	sess := h.session(t, "alice", &ref)

	_, err := h.coach.HandleTurn(ctx, sess.ID, "alice", "first", "")
	require.NoError(t, err)

	h.recaller.matches = []memory.Match{{
		Record: model.MemoryRecord{Role: model.RoleUser, TextExcerpt: "I froze in last year's review", CreatedAt: time.Now()},
		Score:  0.9,
	}}
	_, err = h.coach.HandleTurn(ctx, sess.ID, "alice", "second", "")
	require.NoError(t, err)

	prompt := h.provider.lastPrompt()
	assert.Contains(t, prompt.System, "Negotiating a raise")
	assert.Contains(t, prompt.System, "- Anchor high")
	notes := strings.Index(prompt.System, notesOpen)
	require.Greater(t, notes, strings.Index(prompt.System, "Negotiating a raise"))
	assert.Contains(t, prompt.System[notes:], "I froze in last year's review")

	require.Len(t, prompt.Messages, 3)
	assert.Equal(t, "first", prompt.Messages[0].Content)
	assert.Equal(t, registryprovider.RoleAssistant, prompt.Messages[1].Role)
	assert.Equal(t, "second", prompt.Messages[2].Content)

	// Window turns and the turn being answered are excluded from recall.
	turns := h.turns(t, sess.ID)
	assert.ElementsMatch(t, []uuid.UUID{turns[0].ID, turns[1].ID, turns[2].ID}, h.recaller.exclude)
}

func TestHandleTurnCancelledDuringRecallKeepsUserTurn(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, "alice", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.recaller.onQuery = cancel

	_, err := h.coach.HandleTurn(ctx, sess.ID, "alice", "don't lose this", "")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)

	turns := h.turns(t, sess.ID)
	require.Len(t, turns, 1)
	assert.Equal(t, "don't lose this", turns[0].Content)
	assert.Equal(t, []uuid.UUID{turns[0].ID}, h.scheduler.scheduled())
}

func TestHandleTurnProviderTimeoutKeepsUserTurn(t *testing.T) {
	h := newHarness(t)
	h.provider.respond = func(ctx context.Context, _ registryprovider.Prompt) (*registryprovider.Completion, error) {
		<-ctx.Done()
		return nil, retry.Transient(ctx.Err())
	}
	sess := h.session(t, "alice", nil)

	_, err := h.coach.HandleTurn(context.Background(), sess.ID, "alice", "are you there?", "")
	var unavailable *gateway.ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 3, unavailable.Attempts)

	turns := h.turns(t, sess.ID)
	require.Len(t, turns, 1)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, []uuid.UUID{turns[0].ID}, h.scheduler.scheduled())

	// The session stays usable.
	h.provider.respond = echo
	res, err := h.coach.HandleTurn(context.Background(), sess.ID, "alice", "retrying", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.AssistantTurn.Seq)
}

func TestHandleTurnRejectsClosedSession(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, "alice", nil)
	_, err := h.store.CompleteSession(context.Background(), sess.ID)
	require.NoError(t, err)

	_, err = h.coach.HandleTurn(context.Background(), sess.ID, "alice", "hello", "")
	var closed *registrystore.SessionClosedError
	require.ErrorAs(t, err, &closed)
	assert.Empty(t, h.turns(t, sess.ID))
	assert.Empty(t, h.scheduler.scheduled())
}

func TestHandleTurnUnsupportedModelPersistsNothing(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, "alice", nil)

	_, err := h.coach.HandleTurn(context.Background(), sess.ID, "alice", "hello", "gpt-7")
	var unsupported *gateway.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, []string{"openai"}, unsupported.Supported)
	assert.Empty(t, h.turns(t, sess.ID))
}

func TestHandleTurnValidation(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, "alice", nil)

	_, err := h.coach.HandleTurn(context.Background(), sess.ID, "alice", "   ", "")
	var invalid *registrystore.ValidationError
	require.ErrorAs(t, err, &invalid)

	_, err = h.coach.HandleTurn(context.Background(), sess.ID, "bob", "hello", "")
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = h.coach.HandleTurn(context.Background(), uuid.New(), "alice", "hello", "")
	require.ErrorAs(t, err, &notFound)
}

func TestHandleTurnSurvivesMemoryFailure(t *testing.T) {
	h := newHarness(t)
	h.recaller.err = errors.New("vector index offline")
	sess := h.session(t, "alice", nil)

	res, err := h.coach.HandleTurn(context.Background(), sess.ID, "alice", "hello", "")
	require.NoError(t, err)
	assert.Empty(t, res.Memories)
	assert.NotContains(t, h.provider.lastPrompt().System, notesOpen)
}

func TestHandleTurnSerializesPerSession(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, "alice", nil)

	gate := make(chan struct{})
	var first sync.Once
	h.provider.respond = func(ctx context.Context, p registryprovider.Prompt) (*registryprovider.Completion, error) {
		first.Do(func() { <-gate })
		return echo(ctx, p)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, msg := range []string{"one", "two"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.coach.HandleTurn(context.Background(), sess.ID, "alice", msg, "")
		}()
		time.Sleep(20 * time.Millisecond)
	}
	close(gate)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	turns := h.turns(t, sess.ID)
	require.Len(t, turns, 4)
	roles := []model.Role{turns[0].Role, turns[1].Role, turns[2].Role, turns[3].Role}
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant}, roles)
	assert.Equal(t, "coach: "+turns[0].Content, turns[1].Content)
	assert.Equal(t, "coach: "+turns[2].Content, turns[3].Content)
}

func TestHandleTurnCancelledWhileWaitingForLock(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, "alice", nil)

	release, err := h.coach.locks.Acquire(context.Background(), sess.ID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.coach.HandleTurn(ctx, sess.ID, "alice", "hello", "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.turns(t, sess.ID))
}
