package postgres

import (
	"context"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"gorm.io/gorm"
)

type AppealPostgreSQL struct {
	db *gorm.DB
}

func (a *AppealPostgreSQL) Create(ctx context.Context, appeal *models.AppealRequest) error {
	return a.db.WithContext(ctx).Create(appeal).Error
}

func (a *AppealPostgreSQL) GetByID(ctx context.Context, id uint) (*models.AppealRequest, error) {
	var appeal models.AppealRequest
	if err := a.db.WithContext(ctx).First(&appeal, id).Error; err != nil {
		return nil, err
	}
	return &appeal, nil
}

func (a *AppealPostgreSQL) Update(ctx context.Context, appeal *models.AppealRequest) error {
	return a.db.WithContext(ctx).Save(appeal).Error
}

func (a *AppealPostgreSQL) ListByCase(ctx context.Context, caseID uint) ([]*models.AppealRequest, error) {
	var appeals []*models.AppealRequest
	if err := a.db.WithContext(ctx).
		Where("incident_case_id = ?", caseID).
		Order("id asc").
		Find(&appeals).Error; err != nil {
		return nil, err
	}
	return appeals, nil
}

func (a *AppealPostgreSQL) List(ctx context.Context, filters repositories.AppealFilters) ([]*models.AppealRequest, int64, error) {
	var appeals []*models.AppealRequest
	var total int64

	query := a.db.WithContext(ctx).Model(&models.AppealRequest{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CandidateID != nil {
		query = query.Where("candidate_id = ?", *filters.CandidateID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, "", "", filters.Limit, filters.Offset)
	if err := query.Find(&appeals).Error; err != nil {
		return nil, 0, err
	}

	return appeals, total, nil
}

func (a *AppealPostgreSQL) HasOpenAppealForCase(ctx context.Context, caseID uint) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&models.AppealRequest{}).
		Where("incident_case_id = ? AND status IN ?", caseID,
			[]models.AppealStatus{models.AppealSubmitted, models.AppealInReview}).
		Count(&count).Error
	return count > 0, err
}
