package postgres

import (
	"context"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	return a.db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, attempt *models.Attempt) error {
	return a.db.WithContext(ctx).Save(attempt).Error
}

func (a *AttemptPostgreSQL) SoftDelete(ctx context.Context, id uint, deletedBy string) error {
	if err := a.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ?", id).
		Update("deleted_by", deletedBy).Error; err != nil {
		return err
	}
	return a.db.WithContext(ctx).Delete(&models.Attempt{}, id).Error
}

func (a *AttemptPostgreSQL) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	var attempts []*models.Attempt
	var total int64

	query := a.db.WithContext(ctx).Model(&models.Attempt{})
	query = a.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByCandidateAndExam(ctx context.Context, candidateID string, examID uint) ([]*models.Attempt, error) {
	var attempts []*models.Attempt
	if err := a.db.WithContext(ctx).
		Where("candidate_id = ? AND exam_id = ?", candidateID, examID).
		Order("attempt_number asc").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) NextAttemptNumber(ctx context.Context, candidateID string, examID uint) (int, error) {
	var max int
	err := a.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("candidate_id = ? AND exam_id = ?", candidateID, examID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error
	return max + 1, err
}

func (a *AttemptPostgreSQL) GetExpiredRunning(ctx context.Context, now time.Time) ([]*models.Attempt, error) {
	var attempts []*models.Attempt
	nonTerminal := []models.AttemptStatus{
		models.AttemptStarted, models.AttemptInProgress, models.AttemptPaused, models.AttemptResumed,
	}
	if err := a.db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?", nonTerminal, now).
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) applyFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CandidateID != nil {
		query = query.Where("candidate_id = ?", *filters.CandidateID)
	}
	if filters.ExamID != nil {
		query = query.Where("exam_id = ?", *filters.ExamID)
	}
	if filters.DateFrom != nil {
		query = query.Where("started_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("started_at <= ?", *filters.DateTo)
	}
	return query
}
