package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/validator"
)

const appealCounterName = "appeal_request"

// AppealService handles candidate disputes against a case outcome. Approval
// reopens the case and records the superseding decision in one transaction.
type AppealService interface {
	Submit(ctx context.Context, req *SubmitAppealRequest) (*models.AppealRequest, error)
	StartReview(ctx context.Context, appealID uint, reviewerID string) (*models.AppealRequest, error)
	Review(ctx context.Context, req *ReviewAppealRequest) (*models.AppealRequest, error)
	GetByID(ctx context.Context, appealID uint) (*models.AppealRequest, error)
	ListByCase(ctx context.Context, caseID uint) ([]*models.AppealRequest, error)
	List(ctx context.Context, filters repositories.AppealFilters) ([]*models.AppealRequest, int64, error)
}

type SubmitAppealRequest struct {
	CaseID      uint   `json:"case_id" validate:"required"`
	CandidateID string `json:"candidate_id" validate:"required"`
	Message     string `json:"message" validate:"required,min=10"`
}

type ReviewAppealRequest struct {
	AppealID       uint                `json:"appeal_id" validate:"required"`
	Approve        bool                `json:"approve"`
	NewOutcome     *models.CaseOutcome `json:"new_outcome" validate:"omitempty,case_outcome"`
	Reason         string              `json:"reason" validate:"required"`
	DecisionNoteEn *string             `json:"decision_note_en"`
	DecisionNoteAr *string             `json:"decision_note_ar"`
	ReviewerID     string              `json:"reviewer_id" validate:"required"`
}

type appealService struct {
	repo      repositories.Repository
	clock     Clock
	locks     *keyedMutex
	audit     AuditSink
	notifier  NotificationChannel
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAppealService(
	repo repositories.Repository,
	clock Clock,
	locks *keyedMutex,
	audit AuditSink,
	notifier NotificationChannel,
	logger *slog.Logger,
	v *validator.Validator,
) AppealService {
	return &appealService{
		repo:      repo,
		clock:     clock,
		locks:     locks,
		audit:     audit,
		notifier:  notifier,
		logger:    logger,
		validator: v,
	}
}

func (s *appealService) Submit(ctx context.Context, req *SubmitAppealRequest) (*models.AppealRequest, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	// Appeals mutate under the case lock so submission serializes with
	// decisions and reopens on the same case.
	unlock := s.locks.Lock(caseKey(req.CaseID))
	defer unlock()

	c, err := s.repo.Incident().GetByID(ctx, req.CaseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get incident case: %w", err)
	}
	if c.Outcome == nil {
		return nil, ErrCaseNotDecided
	}
	if c.CandidateID != req.CandidateID {
		return nil, fmt.Errorf("%w: appeal candidate does not match case candidate", ErrInvalidState)
	}

	hasOpen, err := s.repo.Appeal().HasOpenAppealForCase(ctx, req.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open appeals: %w", err)
	}
	if hasOpen {
		return nil, ErrOpenAppealExists
	}

	now := s.clock.Now()
	var appeal *models.AppealRequest
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		seq, err := tx.Counter().Next(ctx, appealCounterName)
		if err != nil {
			return err
		}
		// The outcome under dispute is frozen here; later redecisions on the
		// case never rewrite it.
		original := *c.Outcome
		appeal = &models.AppealRequest{
			AppealNumber:    fmt.Sprintf("AP-%06d", seq),
			IncidentCaseID:  req.CaseID,
			CandidateID:     req.CandidateID,
			Status:          models.AppealSubmitted,
			Message:         req.Message,
			OriginalOutcome: &original,
			AuditFields:     models.AuditFields{CreatedBy: req.CandidateID, CreatedAt: now, UpdatedBy: req.CandidateID, UpdatedAt: now},
		}
		if err := tx.Appeal().Create(ctx, appeal); err != nil {
			return err
		}
		return appendTimeline(ctx, tx, req.CaseID, models.TimelineAppealSubmitted, req.CandidateID, "", map[string]interface{}{
			"appeal_number":    appeal.AppealNumber,
			"original_outcome": original,
		}, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit appeal: %w", err)
	}

	s.logger.Info("appeal submitted",
		"appeal_id", appeal.ID,
		"appeal_number", appeal.AppealNumber,
		"case_id", req.CaseID)

	s.audit.Record(ctx, "appeal.submitted", "appeal_request", appeal.ID, req.CandidateID,
		map[string]interface{}{"case_id": req.CaseID, "appeal_number": appeal.AppealNumber}, "success")

	return appeal, nil
}

func (s *appealService) StartReview(ctx context.Context, appealID uint, reviewerID string) (*models.AppealRequest, error) {
	appeal, err := s.getAppeal(ctx, appealID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(caseKey(appeal.IncidentCaseID))
	defer unlock()

	appeal, err = s.getAppeal(ctx, appealID)
	if err != nil {
		return nil, err
	}
	if appeal.Status != models.AppealSubmitted {
		return nil, ErrAppealNotOpen
	}

	now := s.clock.Now()
	appeal.Status = models.AppealInReview
	appeal.ReviewedBy = &reviewerID
	appeal.UpdatedBy = reviewerID
	appeal.UpdatedAt = now
	if err := s.repo.Appeal().Update(ctx, appeal); err != nil {
		return nil, fmt.Errorf("failed to start appeal review: %w", err)
	}

	s.audit.Record(ctx, "appeal.review_started", "appeal_request", appealID, reviewerID, nil, "success")
	return appeal, nil
}

func (s *appealService) Review(ctx context.Context, req *ReviewAppealRequest) (*models.AppealRequest, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.Approve && req.NewOutcome == nil {
		return nil, ErrNewOutcomeRequired
	}

	appeal, err := s.getAppeal(ctx, req.AppealID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(caseKey(appeal.IncidentCaseID))
	defer unlock()

	// Re-read under the lock.
	appeal, err = s.getAppeal(ctx, req.AppealID)
	if err != nil {
		return nil, err
	}
	if !appeal.Status.IsOpen() {
		return nil, ErrAppealNotOpen
	}

	c, err := s.repo.Incident().GetByID(ctx, appeal.IncidentCaseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get incident case: %w", err)
	}

	now := s.clock.Now()
	verdict := models.AppealRejected
	if req.Approve {
		verdict = models.AppealApproved
	}

	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		if req.Approve {
			// Approval reopens the case, walks it back into review and records
			// the superseding decision atomically with the appeal's own status
			// change.
			if c.Status == models.IncidentResolved || c.Status == models.IncidentClosed {
				if err := applyReopen(ctx, tx, c, req.ReviewerID, "appeal "+appeal.AppealNumber+" approved", now); err != nil {
					return err
				}
			}
			if c.Status == models.IncidentOpen {
				if err := applyStatusChange(ctx, tx, c, models.IncidentInReview, req.ReviewerID, "appeal "+appeal.AppealNumber+" under review", now); err != nil {
					return err
				}
			}
			if err := applyDecision(ctx, tx, c, *req.NewOutcome, req.Reason, req.ReviewerID, false, now); err != nil {
				return err
			}
		}

		appeal.Status = verdict
		appeal.ReviewedBy = &req.ReviewerID
		appeal.ReviewedAt = &now
		appeal.DecisionNoteEn = req.DecisionNoteEn
		appeal.DecisionNoteAr = req.DecisionNoteAr
		appeal.UpdatedBy = req.ReviewerID
		appeal.UpdatedAt = now
		if err := tx.Appeal().Update(ctx, appeal); err != nil {
			return err
		}
		return appendTimeline(ctx, tx, c.ID, models.TimelineAppealReviewed, req.ReviewerID, req.Reason, map[string]interface{}{
			"appeal_number": appeal.AppealNumber,
			"verdict":       verdict,
		}, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to review appeal: %w", err)
	}

	s.logger.Info("appeal reviewed",
		"appeal_id", appeal.ID,
		"verdict", verdict,
		"case_id", c.ID,
		"reviewer_id", req.ReviewerID)

	s.audit.Record(ctx, "appeal.reviewed", "appeal_request", appeal.ID, req.ReviewerID,
		map[string]interface{}{"verdict": verdict, "case_id": c.ID}, "success")

	// Best effort: let the candidate's open connection know the verdict.
	if err := s.notifier.PushToAttempt(ctx, c.AttemptID, "appeal_reviewed", map[string]interface{}{
		"appeal_number": appeal.AppealNumber,
		"verdict":       verdict,
	}); err != nil {
		s.logger.Warn("appeal_reviewed push failed", "appeal_id", appeal.ID, "error", err)
	}

	return appeal, nil
}

func (s *appealService) GetByID(ctx context.Context, appealID uint) (*models.AppealRequest, error) {
	return s.getAppeal(ctx, appealID)
}

func (s *appealService) ListByCase(ctx context.Context, caseID uint) ([]*models.AppealRequest, error) {
	return s.repo.Appeal().ListByCase(ctx, caseID)
}

func (s *appealService) List(ctx context.Context, filters repositories.AppealFilters) ([]*models.AppealRequest, int64, error) {
	return s.repo.Appeal().List(ctx, filters)
}

func (s *appealService) getAppeal(ctx context.Context, appealID uint) (*models.AppealRequest, error) {
	appeal, err := s.repo.Appeal().GetByID(ctx, appealID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAppealNotFound
		}
		return nil, fmt.Errorf("failed to get appeal: %w", err)
	}
	return appeal, nil
}
