package gormstore

import (
	"context"
	"fmt"

	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
)

func (s *Store) GetMemoryRecordByTurn(ctx context.Context, turnID uuid.UUID) (*model.MemoryRecord, error) {
	var rec model.MemoryRecord
	if err := s.db.WithContext(ctx).Where("source_turn_id = ?", turnID).Take(&rec).Error; err != nil {
		return nil, notFound(err, "memory record for turn", idString(turnID))
	}
	return &rec, nil
}

func (s *Store) CreateMemoryRecord(ctx context.Context, rec *model.MemoryRecord) (*model.MemoryRecord, bool, error) {
	if rec.ID == uuid.Nil || rec.SourceTurnID == uuid.Nil {
		return nil, false, &registrystore.ValidationError{Field: "id", Message: "record and source turn ids are required"}
	}
	if len(rec.Embedding) == 0 || len(rec.Embedding) != rec.Dimension {
		return nil, false, &registrystore.ValidationError{
			Field:   "embedding",
			Message: fmt.Sprintf("vector has %d dimensions, record declares %d", len(rec.Embedding), rec.Dimension),
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.timestamp()
	}
	err := s.db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return rec, true, nil
	}
	if s.dialect.IsUniqueViolation(err) {
		existing, getErr := s.GetMemoryRecordByTurn(ctx, rec.SourceTurnID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("create memory record failed: %w", err)
}

func (s *Store) GetMemoryRecords(ctx context.Context, ids []uuid.UUID) ([]model.MemoryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var recs []model.MemoryRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get memory records failed: %w", err)
	}
	return recs, nil
}
