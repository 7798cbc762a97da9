package postgres

import (
	"context"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"gorm.io/gorm"
)

type IncidentPostgreSQL struct {
	db *gorm.DB
}

func (i *IncidentPostgreSQL) Create(ctx context.Context, c *models.IncidentCase) error {
	return i.db.WithContext(ctx).Create(c).Error
}

func (i *IncidentPostgreSQL) GetByID(ctx context.Context, id uint) (*models.IncidentCase, error) {
	var c models.IncidentCase
	if err := i.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (i *IncidentPostgreSQL) GetByIDWithDetails(ctx context.Context, id uint) (*models.IncidentCase, error) {
	var c models.IncidentCase
	if err := i.db.WithContext(ctx).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Decisions", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("EvidenceLinks").
		Preload("Comments").
		Preload("Appeals").
		First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (i *IncidentPostgreSQL) Update(ctx context.Context, c *models.IncidentCase) error {
	return i.db.WithContext(ctx).Save(c).Error
}

func (i *IncidentPostgreSQL) List(ctx context.Context, filters repositories.IncidentFilters) ([]*models.IncidentCase, int64, error) {
	var cases []*models.IncidentCase
	var total int64

	query := i.db.WithContext(ctx).Model(&models.IncidentCase{})
	query = i.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&cases).Error; err != nil {
		return nil, 0, err
	}

	return cases, total, nil
}

func (i *IncidentPostgreSQL) HasOpenCaseForAttempt(ctx context.Context, attemptID uint) (bool, error) {
	var count int64
	err := i.db.WithContext(ctx).Model(&models.IncidentCase{}).
		Where("attempt_id = ? AND status IN ?", attemptID,
			[]models.IncidentStatus{models.IncidentOpen, models.IncidentInReview}).
		Count(&count).Error
	return count > 0, err
}

func (i *IncidentPostgreSQL) AppendTimeline(ctx context.Context, entry *models.IncidentTimelineEntry) error {
	return i.db.WithContext(ctx).Create(entry).Error
}

func (i *IncidentPostgreSQL) ListTimeline(ctx context.Context, caseID uint) ([]*models.IncidentTimelineEntry, error) {
	var entries []*models.IncidentTimelineEntry
	if err := i.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("id asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (i *IncidentPostgreSQL) CreateDecision(ctx context.Context, decision *models.IncidentDecision) error {
	return i.db.WithContext(ctx).Create(decision).Error
}

func (i *IncidentPostgreSQL) ListDecisions(ctx context.Context, caseID uint) ([]*models.IncidentDecision, error) {
	var decisions []*models.IncidentDecision
	if err := i.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("id asc").
		Find(&decisions).Error; err != nil {
		return nil, err
	}
	return decisions, nil
}

func (i *IncidentPostgreSQL) CreateEvidenceLink(ctx context.Context, link *models.IncidentEvidenceLink) error {
	return i.db.WithContext(ctx).Create(link).Error
}

func (i *IncidentPostgreSQL) ListEvidenceLinks(ctx context.Context, caseID uint) ([]*models.IncidentEvidenceLink, error) {
	var links []*models.IncidentEvidenceLink
	if err := i.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("id asc").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (i *IncidentPostgreSQL) CreateComment(ctx context.Context, comment *models.IncidentComment) error {
	return i.db.WithContext(ctx).Create(comment).Error
}

func (i *IncidentPostgreSQL) GetCommentByID(ctx context.Context, id uint) (*models.IncidentComment, error) {
	var comment models.IncidentComment
	if err := i.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (i *IncidentPostgreSQL) UpdateComment(ctx context.Context, comment *models.IncidentComment) error {
	return i.db.WithContext(ctx).Save(comment).Error
}

func (i *IncidentPostgreSQL) applyFilters(query *gorm.DB, filters repositories.IncidentFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Severity != nil {
		query = query.Where("severity = ?", *filters.Severity)
	}
	if filters.Source != nil {
		query = query.Where("source = ?", *filters.Source)
	}
	if filters.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filters.AssignedTo)
	}
	if filters.CandidateID != nil {
		query = query.Where("candidate_id = ?", *filters.CandidateID)
	}
	if filters.ExamID != nil {
		query = query.Where("exam_id = ?", *filters.ExamID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}
