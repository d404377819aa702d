package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/coaching-service/internal/model"
	"github.com/google/uuid"
)

// CreateSessionRequest describes a new active session.
type CreateSessionRequest struct {
	UserID    string
	AIModel   string
	LessonRef *string
	Title     string
}

// AppendTurnRequest describes a turn to append to an active session.
type AppendTurnRequest struct {
	SessionID  uuid.UUID
	Role       model.Role
	Content    string
	AIModel    *string
	TokensUsed *int
}

// Activity is a consistent snapshot of a user's sessions and turns in a time range.
type Activity struct {
	Sessions []model.Session
	// Turns holds every turn of the user's sessions created in range, oldest first.
	Turns []model.Turn
}

// RecordStore is the transactional record store behind the coaching core.
type RecordStore interface {
	// Sessions
	CreateSession(ctx context.Context, req CreateSessionRequest) (*model.Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)
	// CompleteSession marks the session completed. Completing twice is a no-op.
	CompleteSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)

	// Lessons
	SaveLesson(ctx context.Context, lesson *model.Lesson) error
	GetLesson(ctx context.Context, lessonID string) (*model.Lesson, error)

	// Turns
	// AppendTurn fails with *SessionClosedError when the session is not active.
	AppendTurn(ctx context.Context, req AppendTurnRequest) (*model.Turn, error)
	// RecentTurns returns up to limit latest turns in chronological order.
	RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]model.Turn, error)
	GetTurn(ctx context.Context, turnID uuid.UUID) (*model.Turn, error)

	// Memory records
	GetMemoryRecordByTurn(ctx context.Context, turnID uuid.UUID) (*model.MemoryRecord, error)
	// CreateMemoryRecord inserts rec unless a record for the same source turn exists,
	// in which case the existing record is returned with created=false.
	CreateMemoryRecord(ctx context.Context, rec *model.MemoryRecord) (stored *model.MemoryRecord, created bool, err error)
	GetMemoryRecords(ctx context.Context, ids []uuid.UUID) ([]model.MemoryRecord, error)

	// Analytics
	// LoadActivity reads sessions and turns for userID in [start, end) from one snapshot.
	LoadActivity(ctx context.Context, userID string, start, end time.Time) (*Activity, error)
	CreateReport(ctx context.Context, report *model.ProgressReport) (*model.ProgressReport, error)
	GetReport(ctx context.Context, userID string, reportID uuid.UUID) (*model.ProgressReport, error)
	ListReports(ctx context.Context, userID string, limit int) ([]model.ProgressReport, error)

	// Tasks
	// CreateTask enqueues a task. A named task that already exists is left untouched.
	CreateTask(ctx context.Context, taskType string, taskName *string, body map[string]interface{}) error
	// ClaimReadyTasks leases up to limit due tasks for lease.
	ClaimReadyTasks(ctx context.Context, limit int, lease time.Duration) ([]model.Task, error)
	DeleteTask(ctx context.Context, taskID uuid.UUID) error
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryDelay time.Duration) error
}

// Loader creates a RecordStore from config.
type Loader func(ctx context.Context) (RecordStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
