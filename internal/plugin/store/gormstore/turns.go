package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppendTurn locks the session row, checks it is active and writes the next
// turn with seq = last+1 and a created_at strictly after the previous turn.
func (s *Store) AppendTurn(ctx context.Context, req registrystore.AppendTurnRequest) (*model.Turn, error) {
	if req.Role != model.RoleUser && req.Role != model.RoleAssistant {
		return nil, &registrystore.ValidationError{Field: "role", Message: fmt.Sprintf("unsupported role %q", req.Role)}
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, &registrystore.ValidationError{Field: "content", Message: "must not be empty"}
	}

	var turn model.Turn
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := s.forUpdate(tx).Where("id = ?", req.SessionID).Take(&session).Error; err != nil {
			return notFound(err, "session", idString(req.SessionID))
		}
		if !session.IsActive {
			return &registrystore.SessionClosedError{SessionID: session.ID}
		}

		var last []model.Turn
		if err := tx.Where("session_id = ?", req.SessionID).Order("seq DESC").Limit(1).Find(&last).Error; err != nil {
			return err
		}
		createdAt := s.timestamp()
		seq := int64(1)
		if len(last) > 0 {
			seq = last[0].Seq + 1
			if !createdAt.After(last[0].CreatedAt) {
				createdAt = last[0].CreatedAt.Add(time.Microsecond)
			}
		}

		turn = model.Turn{
			ID:         uuid.New(),
			SessionID:  req.SessionID,
			Seq:        seq,
			Role:       req.Role,
			Content:    req.Content,
			AIModel:    req.AIModel,
			TokensUsed: req.TokensUsed,
			CreatedAt:  createdAt,
		}
		return tx.Create(&turn).Error
	})
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return nil, &registrystore.ConflictError{Message: "concurrent append to session " + req.SessionID.String(), Code: "turn_seq_conflict"}
		}
		return nil, err
	}
	return &turn, nil
}

func (s *Store) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	var turns []model.Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("recent turns failed: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *Store) GetTurn(ctx context.Context, turnID uuid.UUID) (*model.Turn, error) {
	var turn model.Turn
	if err := s.db.WithContext(ctx).Where("id = ?", turnID).Take(&turn).Error; err != nil {
		return nil, notFound(err, "turn", idString(turnID))
	}
	return &turn, nil
}
