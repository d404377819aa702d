package metrics

import (
	"context"
	"time"

	"github.com/chirino/coaching-service/internal/metrics"
	"github.com/chirino/coaching-service/internal/model"
	"github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
)

// Wrap returns a RecordStore that records StoreLatency for every operation.
func Wrap(inner store.RecordStore) store.RecordStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.RecordStore
}

func observe(op string, start time.Time) {
	metrics.ObserveStore(op, start)
}

func (m *metricsStore) CreateSession(ctx context.Context, req store.CreateSessionRequest) (*model.Session, error) {
	defer observe("create_session", time.Now())
	return m.inner.CreateSession(ctx, req)
}

func (m *metricsStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	defer observe("get_session", time.Now())
	return m.inner.GetSession(ctx, sessionID)
}

func (m *metricsStore) CompleteSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	defer observe("complete_session", time.Now())
	return m.inner.CompleteSession(ctx, sessionID)
}

func (m *metricsStore) SaveLesson(ctx context.Context, lesson *model.Lesson) error {
	defer observe("save_lesson", time.Now())
	return m.inner.SaveLesson(ctx, lesson)
}

func (m *metricsStore) GetLesson(ctx context.Context, lessonID string) (*model.Lesson, error) {
	defer observe("get_lesson", time.Now())
	return m.inner.GetLesson(ctx, lessonID)
}

func (m *metricsStore) AppendTurn(ctx context.Context, req store.AppendTurnRequest) (*model.Turn, error) {
	defer observe("append_turn", time.Now())
	return m.inner.AppendTurn(ctx, req)
}

func (m *metricsStore) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]model.Turn, error) {
	defer observe("recent_turns", time.Now())
	return m.inner.RecentTurns(ctx, sessionID, limit)
}

func (m *metricsStore) GetTurn(ctx context.Context, turnID uuid.UUID) (*model.Turn, error) {
	defer observe("get_turn", time.Now())
	return m.inner.GetTurn(ctx, turnID)
}

func (m *metricsStore) GetMemoryRecordByTurn(ctx context.Context, turnID uuid.UUID) (*model.MemoryRecord, error) {
	defer observe("get_memory_record_by_turn", time.Now())
	return m.inner.GetMemoryRecordByTurn(ctx, turnID)
}

func (m *metricsStore) CreateMemoryRecord(ctx context.Context, rec *model.MemoryRecord) (*model.MemoryRecord, bool, error) {
	defer observe("create_memory_record", time.Now())
	return m.inner.CreateMemoryRecord(ctx, rec)
}

func (m *metricsStore) GetMemoryRecords(ctx context.Context, ids []uuid.UUID) ([]model.MemoryRecord, error) {
	defer observe("get_memory_records", time.Now())
	return m.inner.GetMemoryRecords(ctx, ids)
}

func (m *metricsStore) LoadActivity(ctx context.Context, userID string, start, end time.Time) (*store.Activity, error) {
	defer observe("load_activity", time.Now())
	return m.inner.LoadActivity(ctx, userID, start, end)
}

func (m *metricsStore) CreateReport(ctx context.Context, report *model.ProgressReport) (*model.ProgressReport, error) {
	defer observe("create_report", time.Now())
	return m.inner.CreateReport(ctx, report)
}

func (m *metricsStore) GetReport(ctx context.Context, userID string, reportID uuid.UUID) (*model.ProgressReport, error) {
	defer observe("get_report", time.Now())
	return m.inner.GetReport(ctx, userID, reportID)
}

func (m *metricsStore) ListReports(ctx context.Context, userID string, limit int) ([]model.ProgressReport, error) {
	defer observe("list_reports", time.Now())
	return m.inner.ListReports(ctx, userID, limit)
}

func (m *metricsStore) CreateTask(ctx context.Context, taskType string, taskName *string, body map[string]interface{}) error {
	defer observe("create_task", time.Now())
	return m.inner.CreateTask(ctx, taskType, taskName, body)
}

func (m *metricsStore) ClaimReadyTasks(ctx context.Context, limit int, lease time.Duration) ([]model.Task, error) {
	defer observe("claim_ready_tasks", time.Now())
	return m.inner.ClaimReadyTasks(ctx, limit, lease)
}

func (m *metricsStore) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	defer observe("delete_task", time.Now())
	return m.inner.DeleteTask(ctx, taskID)
}

func (m *metricsStore) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryDelay time.Duration) error {
	defer observe("fail_task", time.Now())
	return m.inner.FailTask(ctx, taskID, errMsg, retryDelay)
}
