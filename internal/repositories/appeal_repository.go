package repositories

import (
	"context"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
)

type AppealRepository interface {
	Create(ctx context.Context, appeal *models.AppealRequest) error
	GetByID(ctx context.Context, id uint) (*models.AppealRequest, error)
	Update(ctx context.Context, appeal *models.AppealRequest) error
	ListByCase(ctx context.Context, caseID uint) ([]*models.AppealRequest, error)
	List(ctx context.Context, filters AppealFilters) ([]*models.AppealRequest, int64, error)

	// HasOpenAppealForCase enforces the one-open-appeal-per-case invariant.
	HasOpenAppealForCase(ctx context.Context, caseID uint) (bool, error)
}
