package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"gorm.io/gorm"
)

// Repository aggregates the per-entity repositories. WithTx runs fn against a
// repository bound to one database transaction; every write inside fn commits
// or rolls back as a unit.
type Repository interface {
	Attempt() AttemptRepository
	Proctor() ProctorRepository
	Incident() IncidentRepository
	Appeal() AppealRepository
	Counter() CounterRepository

	WithTx(ctx context.Context, fn func(Repository) error) error
}

// CounterRepository hands out sequential numbers (case/appeal numbering).
type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

// IsNotFoundError reports whether err is the store's record-not-found error.
// Soft-deleted rows are invisible to every read path, so they surface here too.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	Status      *models.AttemptStatus `json:"status"`
	CandidateID *string               `json:"candidate_id"`
	ExamID      *uint                 `json:"exam_id"`
	DateFrom    *time.Time            `json:"date_from"`
	DateTo      *time.Time            `json:"date_to"`
	Limit       int                   `json:"limit"`
	Offset      int                   `json:"offset"`
	SortBy      string                `json:"sort_by"`    // "created_at", "started_at", "status"
	SortOrder   string                `json:"sort_order"` // "asc", "desc"
}

type IncidentFilters struct {
	Status      *models.IncidentStatus   `json:"status"`
	Severity    *models.IncidentSeverity `json:"severity"`
	Source      *models.IncidentSource   `json:"source"`
	AssignedTo  *string                  `json:"assigned_to"`
	CandidateID *string                  `json:"candidate_id"`
	ExamID      *uint                    `json:"exam_id"`
	DateFrom    *time.Time               `json:"date_from"`
	DateTo      *time.Time               `json:"date_to"`
	Limit       int                      `json:"limit"`
	Offset      int                      `json:"offset"`
	SortBy      string                   `json:"sort_by"`
	SortOrder   string                   `json:"sort_order"`
}

type AppealFilters struct {
	Status      *models.AppealStatus `json:"status"`
	CandidateID *string              `json:"candidate_id"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}
