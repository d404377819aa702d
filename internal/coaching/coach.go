// Package coaching assembles the context for a coaching turn and runs it
// against the provider gateway.
package coaching

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/gateway"
	"github.com/chirino/coaching-service/internal/memory"
	"github.com/chirino/coaching-service/internal/metrics"
	"github.com/chirino/coaching-service/internal/model"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
)

// Completer is the part of the gateway a coach needs.
type Completer interface {
	Supports(modelID string) bool
	Models() []string
	Complete(ctx context.Context, prompt registryprovider.Prompt, modelID string, opts gateway.Options) (*gateway.Result, error)
}

// Recaller retrieves memories similar to a message.
type Recaller interface {
	Query(ctx context.Context, userID, text string, k int, exclude ...uuid.UUID) ([]memory.Match, error)
}

// Scheduler enqueues background memory upserts.
type Scheduler interface {
	ScheduleMemoryUpsert(ctx context.Context, userID string, turnID uuid.UUID) error
}

// Settings tune a Coach.
type Settings struct {
	DefaultModel  string
	RecencyWindow int
	MemoryTopK    int
	TurnTimeout   time.Duration
	Temperature   float64
	MaxTokens     int64
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	UserTurn      *model.Turn
	AssistantTurn *model.Turn
	Memories      []memory.Match
	Model         string
	Attempts      int
}

// Coach handles user messages within coaching sessions.
type Coach struct {
	store     registrystore.RecordStore
	gateway   Completer
	memory    Recaller
	scheduler Scheduler
	locks     *SessionLocks
	settings  Settings
}

func New(store registrystore.RecordStore, gw Completer, mem Recaller, scheduler Scheduler, settings Settings) *Coach {
	return &Coach{
		store:     store,
		gateway:   gw,
		memory:    mem,
		scheduler: scheduler,
		locks:     NewSessionLocks(),
		settings:  settings,
	}
}

// HandleTurn persists message as the user's next turn, answers it with
// modelID (or the session's model when empty) and persists the answer.
// The user turn is stored before the provider is called, so it survives
// provider failures. Turns of one session are handled one at a time.
func (c *Coach) HandleTurn(ctx context.Context, sessionID uuid.UUID, userID, message, modelID string) (*TurnResult, error) {
	start := time.Now()
	result, err := c.handleTurn(ctx, sessionID, userID, message, modelID)
	metrics.ObserveTurn(turnOutcome(err), time.Since(start))
	return result, err
}

func (c *Coach) handleTurn(ctx context.Context, sessionID uuid.UUID, userID, message, modelID string) (*TurnResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &registrystore.ValidationError{Field: "message", Message: "must not be empty"}
	}

	release, err := c.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, &registrystore.NotFoundError{Resource: "session", ID: sessionID.String()}
	}
	if !session.IsActive {
		return nil, &registrystore.SessionClosedError{SessionID: sessionID}
	}
	if modelID == "" {
		modelID = session.AIModel
	}
	if modelID == "" {
		modelID = c.settings.DefaultModel
	}
	if !c.gateway.Supports(modelID) {
		return nil, &gateway.UnsupportedProviderError{ModelID: modelID, Supported: c.gateway.Models()}
	}

	window, err := c.store.RecentTurns(ctx, sessionID, c.settings.RecencyWindow)
	if err != nil {
		return nil, err
	}
	userTurn, err := c.store.AppendTurn(ctx, registrystore.AppendTurnRequest{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   message,
	})
	if err != nil {
		return nil, err
	}

	memories := c.recall(ctx, userID, message, window, userTurn.ID)
	lesson := c.lesson(ctx, session)
	prompt := buildPrompt(lesson, memories, window, message)

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.settings.TurnTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.settings.TurnTimeout)
	}
	reply, err := c.gateway.Complete(callCtx, prompt, modelID, gateway.Options{
		Temperature: c.settings.Temperature,
		MaxTokens:   c.settings.MaxTokens,
	})
	cancel()
	if err != nil {
		log.Warn("Coaching turn failed", "session", sessionID, "model", modelID, "err", err)
		c.schedule(ctx, userID, userTurn.ID)
		return nil, err
	}

	tokens := reply.TokensUsed
	// The answer is persisted even if the caller went away mid-call.
	assistantTurn, err := c.store.AppendTurn(context.WithoutCancel(ctx), registrystore.AppendTurnRequest{
		SessionID:  sessionID,
		Role:       model.RoleAssistant,
		Content:    reply.Text,
		AIModel:    &reply.ModelID,
		TokensUsed: &tokens,
	})
	if err != nil {
		c.schedule(ctx, userID, userTurn.ID)
		return nil, err
	}
	c.schedule(ctx, userID, userTurn.ID)
	c.schedule(ctx, userID, assistantTurn.ID)

	return &TurnResult{
		UserTurn:      userTurn,
		AssistantTurn: assistantTurn,
		Memories:      memories,
		Model:         reply.Model,
		Attempts:      reply.Attempts,
	}, nil
}

func (c *Coach) recall(ctx context.Context, userID, message string, window []model.Turn, current uuid.UUID) []memory.Match {
	if c.memory == nil || c.settings.MemoryTopK <= 0 {
		return nil
	}
	exclude := make([]uuid.UUID, 0, len(window)+1)
	for _, t := range window {
		exclude = append(exclude, t.ID)
	}
	exclude = append(exclude, current)
	matches, err := c.memory.Query(ctx, userID, message, c.settings.MemoryTopK, exclude...)
	if err != nil {
		log.Warn("Memory query failed, continuing without memories", "user", userID, "err", err)
		return nil
	}
	return matches
}

func (c *Coach) lesson(ctx context.Context, session *model.Session) *model.Lesson {
	if session.LessonRef == nil || *session.LessonRef == "" {
		return nil
	}
	lesson, err := c.store.GetLesson(ctx, *session.LessonRef)
	if err != nil {
		log.Warn("Lesson lookup failed", "lesson", *session.LessonRef, "err", err)
		return nil
	}
	return lesson
}

func (c *Coach) schedule(ctx context.Context, userID string, turnID uuid.UUID) {
	if c.scheduler == nil {
		return
	}
	if err := c.scheduler.ScheduleMemoryUpsert(context.WithoutCancel(ctx), userID, turnID); err != nil {
		log.Warn("Failed to schedule memory upsert", "turn", turnID, "err", err)
	}
}

func turnOutcome(err error) string {
	var unavailable *gateway.ProviderUnavailableError
	var unsupported *gateway.UnsupportedProviderError
	var closed *registrystore.SessionClosedError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &unavailable):
		return "provider_unavailable"
	case errors.As(err, &unsupported):
		return "unsupported_provider"
	case errors.As(err, &closed):
		return "session_closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
