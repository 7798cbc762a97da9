package repositories

import (
	"context"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
)

// AttemptRepository owns attempt rows. All reads are active-only: soft-deleted
// attempts behave as absent.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id uint) (*models.Attempt, error)
	Update(ctx context.Context, attempt *models.Attempt) error
	SoftDelete(ctx context.Context, id uint, deletedBy string) error

	List(ctx context.Context, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetByCandidateAndExam(ctx context.Context, candidateID string, examID uint) ([]*models.Attempt, error)
	NextAttemptNumber(ctx context.Context, candidateID string, examID uint) (int, error)

	// GetExpiredRunning returns non-terminal attempts whose expires_at has
	// passed the given instant; consumed by the expiry sweep, which supplies
	// its injected clock.
	GetExpiredRunning(ctx context.Context, now time.Time) ([]*models.Attempt, error)
}
