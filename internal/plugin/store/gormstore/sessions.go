package gormstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Store) CreateSession(ctx context.Context, req registrystore.CreateSessionRequest) (*model.Session, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "must not be empty"}
	}
	if strings.TrimSpace(req.AIModel) == "" {
		return nil, &registrystore.ValidationError{Field: "aiModel", Message: "must not be empty"}
	}
	session := model.Session{
		ID:        uuid.New(),
		UserID:    req.UserID,
		AIModel:   req.AIModel,
		LessonRef: req.LessonRef,
		Title:     req.Title,
		IsActive:  true,
		CreatedAt: s.timestamp(),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("create session failed: %w", err)
	}
	return &session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	var session model.Session
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).Take(&session).Error; err != nil {
		return nil, notFound(err, "session", idString(sessionID))
	}
	return &session, nil
}

func (s *Store) CompleteSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	var session model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.forUpdate(tx).Where("id = ?", sessionID).Take(&session).Error; err != nil {
			return notFound(err, "session", idString(sessionID))
		}
		if !session.IsActive {
			return nil
		}
		now := s.timestamp()
		session.IsActive = false
		session.CompletedAt = &now
		return tx.Model(&model.Session{}).Where("id = ?", sessionID).Updates(map[string]interface{}{
			"is_active":    false,
			"completed_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) SaveLesson(ctx context.Context, lesson *model.Lesson) error {
	if strings.TrimSpace(lesson.ID) == "" {
		return &registrystore.ValidationError{Field: "id", Message: "must not be empty"}
	}
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = s.timestamp()
	}
	return s.db.WithContext(ctx).Save(lesson).Error
}

func (s *Store) GetLesson(ctx context.Context, lessonID string) (*model.Lesson, error) {
	var lesson model.Lesson
	if err := s.db.WithContext(ctx).Where("id = ?", lessonID).Take(&lesson).Error; err != nil {
		return nil, notFound(err, "lesson", lessonID)
	}
	return &lesson, nil
}
