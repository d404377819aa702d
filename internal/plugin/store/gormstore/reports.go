package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoadActivity reads both tables inside one transaction so the counts and the
// digest describe the same committed state.
func (s *Store) LoadActivity(ctx context.Context, userID string, start, end time.Time) (*registrystore.Activity, error) {
	if !start.Before(end) {
		return nil, &registrystore.ValidationError{Field: "period", Message: "start must be before end"}
	}
	var activity registrystore.Activity
	err := s.snapshot(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.
			Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start.UTC(), end.UTC()).
			Order("created_at ASC").
			Find(&activity.Sessions).Error; err != nil {
			return err
		}
		owned := tx.Model(&model.Session{}).Select("id").Where("user_id = ?", userID)
		return tx.
			Where("session_id IN (?) AND created_at >= ? AND created_at < ?", owned, start.UTC(), end.UTC()).
			Order("created_at ASC, seq ASC").
			Find(&activity.Turns).Error
	})
	if err != nil {
		return nil, fmt.Errorf("load activity failed: %w", err)
	}
	return &activity, nil
}

func (s *Store) CreateReport(ctx context.Context, report *model.ProgressReport) (*model.ProgressReport, error) {
	if !report.PeriodStart.Before(report.PeriodEnd) {
		return nil, &registrystore.ValidationError{Field: "period", Message: "periodStart must be before periodEnd"}
	}
	if report.EngagementScore < 0 || report.EngagementScore > 100 {
		return nil, &registrystore.ValidationError{Field: "engagementScore", Message: "must be within [0,100]"}
	}
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = s.timestamp()
	}
	if report.Strengths == nil {
		report.Strengths = []string{}
	}
	if report.AreasForImprovement == nil {
		report.AreasForImprovement = []string{}
	}
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}
	if err := s.db.WithContext(ctx).Create(report).Error; err != nil {
		return nil, fmt.Errorf("create report failed: %w", err)
	}
	return report, nil
}

func (s *Store) GetReport(ctx context.Context, userID string, reportID uuid.UUID) (*model.ProgressReport, error) {
	var report model.ProgressReport
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", reportID, userID).Take(&report).Error
	if err != nil {
		return nil, notFound(err, "report", idString(reportID))
	}
	return &report, nil
}

func (s *Store) ListReports(ctx context.Context, userID string, limit int) ([]model.ProgressReport, error) {
	if limit <= 0 {
		limit = 20
	}
	var reports []model.ProgressReport
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("list reports failed: %w", err)
	}
	return reports, nil
}
