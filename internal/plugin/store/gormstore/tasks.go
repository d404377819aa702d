package gormstore

import (
	"context"
	"time"

	"github.com/chirino/coaching-service/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateTask(ctx context.Context, taskType string, taskName *string, body map[string]interface{}) error {
	now := s.timestamp()
	task := model.Task{
		ID:        uuid.New(),
		TaskName:  taskName,
		TaskType:  taskType,
		TaskBody:  body,
		CreatedAt: now,
		RetryAt:   now,
	}
	err := s.db.WithContext(ctx).Create(&task).Error
	if err == nil {
		return nil
	}
	if taskName != nil && s.dialect.IsUniqueViolation(err) {
		// Singleton task already exists; idempotent no-op.
		return nil
	}
	return err
}

// ClaimReadyTasks pushes retry_at of the claimed rows out by lease so that other
// workers skip them while they are processed.
func (s *Store) ClaimReadyTasks(ctx context.Context, limit int, lease time.Duration) ([]model.Task, error) {
	var tasks []model.Task
	now := s.timestamp()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("retry_at <= ?", now).Order("retry_at ASC, created_at ASC").Limit(limit)
		if s.dialect.LockRows {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		return tx.Model(&model.Task{}).Where("id IN ?", ids).Update("retry_at", now.Add(lease)).Error
	})
	return tasks, err
}

func (s *Store) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("id = ?", taskID).Delete(&model.Task{}).Error
}

func (s *Store) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryDelay time.Duration) error {
	return s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Updates(map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
		"retry_at":    s.timestamp().Add(retryDelay),
		"last_error":  errMsg,
	}).Error
}
