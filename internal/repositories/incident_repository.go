package repositories

import (
	"context"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
)

// IncidentRepository owns cases and their append-only children. Timeline and
// decision rows are insert-only by construction: no update methods exist.
type IncidentRepository interface {
	Create(ctx context.Context, c *models.IncidentCase) error
	GetByID(ctx context.Context, id uint) (*models.IncidentCase, error)
	GetByIDWithDetails(ctx context.Context, id uint) (*models.IncidentCase, error)
	Update(ctx context.Context, c *models.IncidentCase) error
	List(ctx context.Context, filters IncidentFilters) ([]*models.IncidentCase, int64, error)

	// HasOpenCaseForAttempt reports whether a case in Open or InReview exists
	// for the attempt; gates automatic incident creation.
	HasOpenCaseForAttempt(ctx context.Context, attemptID uint) (bool, error)

	AppendTimeline(ctx context.Context, entry *models.IncidentTimelineEntry) error
	ListTimeline(ctx context.Context, caseID uint) ([]*models.IncidentTimelineEntry, error)

	CreateDecision(ctx context.Context, decision *models.IncidentDecision) error
	ListDecisions(ctx context.Context, caseID uint) ([]*models.IncidentDecision, error)

	CreateEvidenceLink(ctx context.Context, link *models.IncidentEvidenceLink) error
	ListEvidenceLinks(ctx context.Context, caseID uint) ([]*models.IncidentEvidenceLink, error)

	CreateComment(ctx context.Context, comment *models.IncidentComment) error
	GetCommentByID(ctx context.Context, id uint) (*models.IncidentComment, error)
	UpdateComment(ctx context.Context, comment *models.IncidentComment) error
}
