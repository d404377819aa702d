package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/metrics"
	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/chirino/coaching-service/internal/retry"
	"github.com/google/uuid"
)

// TaskTypeMemoryUpsert embeds one turn into the user's memory.
const TaskTypeMemoryUpsert = "memory_upsert"

// MemoryUpserter stores a turn as a memory. *memory.Store satisfies it.
type MemoryUpserter interface {
	Upsert(ctx context.Context, userID string, turn *model.Turn) (*model.MemoryRecord, error)
}

// TaskSettings tunes a TaskProcessor.
type TaskSettings struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// RetryDelay is the wait after the first failure; it doubles up to MaxDelay.
	RetryDelay time.Duration
	MaxDelay   time.Duration
	// Lease hides claimed tasks from other workers while they run.
	Lease time.Duration
}

// TaskProcessor runs durable background tasks. It polls on an interval and
// wakes early whenever a task is scheduled from this process.
type TaskProcessor struct {
	store    registrystore.RecordStore
	memory   MemoryUpserter
	settings TaskSettings
	backoff  retry.Policy
	wake     chan struct{}
}

// NewTaskProcessor creates a new background task processor.
func NewTaskProcessor(store registrystore.RecordStore, memory MemoryUpserter, settings TaskSettings) *TaskProcessor {
	if settings.Interval <= 0 {
		settings.Interval = 5 * time.Second
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = 50
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 5
	}
	if settings.Lease <= 0 {
		settings.Lease = 5 * time.Minute
	}
	return &TaskProcessor{
		store:    store,
		memory:   memory,
		settings: settings,
		backoff: retry.Policy{
			MaxAttempts: settings.MaxAttempts,
			BaseDelay:   settings.RetryDelay,
			MaxDelay:    settings.MaxDelay,
			Jitter:      0.1,
		},
		wake: make(chan struct{}, 1),
	}
}

// ScheduleMemoryUpsert enqueues a memory upsert for turnID. Scheduling the
// same turn twice leaves a single task.
func (p *TaskProcessor) ScheduleMemoryUpsert(ctx context.Context, userID string, turnID uuid.UUID) error {
	name := TaskTypeMemoryUpsert + ":" + turnID.String()
	body := map[string]interface{}{
		"userId": userID,
		"turnId": turnID.String(),
	}
	if err := p.store.CreateTask(ctx, TaskTypeMemoryUpsert, &name, body); err != nil {
		return fmt.Errorf("schedule memory upsert: %w", err)
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start begins the task processing loop. Returns when ctx is cancelled.
func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		// Keep draining while full batches come back.
		for {
			n := p.ProcessReady(ctx)
			if n < p.settings.BatchSize || ctx.Err() != nil {
				break
			}
		}
	}
}

// ProcessReady claims and runs one batch of due tasks, returning how many were claimed.
func (p *TaskProcessor) ProcessReady(ctx context.Context) int {
	tasks, err := p.store.ClaimReadyTasks(ctx, p.settings.BatchSize, p.settings.Lease)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("TaskProcessor: claim tasks failed", "err", err)
		}
		return 0
	}
	for _, task := range tasks {
		p.run(ctx, task)
	}
	return len(tasks)
}

func (p *TaskProcessor) run(ctx context.Context, task model.Task) {
	err := p.executeTask(ctx, task.TaskType, task.TaskBody)
	if err == nil {
		metrics.IncTask(task.TaskType, "ok")
		if dErr := p.store.DeleteTask(ctx, task.ID); dErr != nil {
			log.Error("TaskProcessor: delete task failed", "taskId", task.ID, "err", dErr)
		}
		return
	}
	if ctx.Err() != nil {
		// Shutting down; the lease expires and another run picks it up.
		return
	}

	attempts := task.RetryCount + 1
	if attempts >= p.settings.MaxAttempts {
		metrics.IncTask(task.TaskType, "dropped")
		if task.TaskType == TaskTypeMemoryUpsert {
			log.Warn("Memory upsert dropped", "taskId", task.ID, "attempts", attempts, "err", err)
		} else {
			log.Warn("TaskProcessor: task dropped", "taskId", task.ID, "type", task.TaskType, "attempts", attempts, "err", err)
		}
		if dErr := p.store.DeleteTask(ctx, task.ID); dErr != nil {
			log.Error("TaskProcessor: delete task failed", "taskId", task.ID, "err", dErr)
		}
		return
	}

	metrics.IncTask(task.TaskType, "retry")
	delay := p.backoff.Delay(attempts)
	log.Info("TaskProcessor: task failed, will retry", "taskId", task.ID, "type", task.TaskType, "attempt", attempts, "retryIn", delay, "err", err)
	if fErr := p.store.FailTask(ctx, task.ID, err.Error(), delay); fErr != nil {
		log.Error("TaskProcessor: fail task record failed", "taskId", task.ID, "err", fErr)
	}
}

func (p *TaskProcessor) executeTask(ctx context.Context, taskType string, body map[string]any) error {
	switch taskType {
	case TaskTypeMemoryUpsert:
		return p.executeMemoryUpsert(ctx, body)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (p *TaskProcessor) executeMemoryUpsert(ctx context.Context, body map[string]any) error {
	userID, _ := body["userId"].(string)
	turnIDStr, _ := body["turnId"].(string)
	if userID == "" || turnIDStr == "" {
		return fmt.Errorf("memory_upsert: missing userId or turnId in task body")
	}
	turnID, err := uuid.Parse(turnIDStr)
	if err != nil {
		return fmt.Errorf("memory_upsert: invalid turnId %q: %w", turnIDStr, err)
	}

	turn, err := p.store.GetTurn(ctx, turnID)
	var notFound *registrystore.NotFoundError
	if errors.As(err, &notFound) {
		log.Debug("Skipping memory upsert for missing turn", "turn", turnID)
		return nil
	}
	if err != nil {
		return err
	}
	session, err := p.store.GetSession(ctx, turn.SessionID)
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if session.UserID != userID {
		log.Warn("Skipping memory upsert for turn owned by another user", "turn", turnID)
		return nil
	}

	_, err = p.memory.Upsert(ctx, userID, turn)
	return err
}
