package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/validator"
)

const caseCounterName = "incident_case"

// caseTransitions is the only authority on legal status moves. Reopen is not
// listed here; it goes through Reopen which records its own timeline type.
var caseTransitions = map[models.IncidentStatus][]models.IncidentStatus{
	models.IncidentOpen:     {models.IncidentInReview},
	models.IncidentInReview: {models.IncidentResolved},
	models.IncidentResolved: {models.IncidentClosed},
	models.IncidentClosed:   {},
}

func canTransition(from, to models.IncidentStatus) bool {
	for _, allowed := range caseTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IncidentService runs the case workflow from creation through decision and
// closure. Every state change appends a timeline entry in the same
// transaction; decisions are append-only history.
type IncidentService interface {
	Create(ctx context.Context, req *CreateIncidentRequest) (*models.IncidentCase, error)
	CreateFromSession(ctx context.Context, session *models.ProctorSession, snapshot *models.ProctorRiskSnapshot) (*models.IncidentCase, error)
	GetByID(ctx context.Context, caseID uint) (*models.IncidentCase, error)
	GetWithTimeline(ctx context.Context, caseID uint) (*models.IncidentCase, error)
	List(ctx context.Context, filters repositories.IncidentFilters) ([]*models.IncidentCase, int64, error)

	Assign(ctx context.Context, caseID uint, assigneeID, actorID string) (*models.IncidentCase, error)
	ChangeStatus(ctx context.Context, caseID uint, to models.IncidentStatus, actorID, note string) (*models.IncidentCase, error)
	LinkEvidence(ctx context.Context, caseID uint, evidenceRef, actorID string) (*models.IncidentEvidenceLink, error)
	RecordDecision(ctx context.Context, req *RecordDecisionRequest) (*models.IncidentCase, error)
	Reopen(ctx context.Context, caseID uint, actorID, reason string) (*models.IncidentCase, error)

	AddComment(ctx context.Context, caseID uint, authorID, body string) (*models.IncidentComment, error)
	EditComment(ctx context.Context, commentID uint, authorID, body string) (*models.IncidentComment, error)
}

type CreateIncidentRequest struct {
	ExamID      uint                  `json:"exam_id" validate:"required"`
	AttemptID   uint                  `json:"attempt_id" validate:"required"`
	CandidateID string                `json:"candidate_id" validate:"required"`
	Source      models.IncidentSource `json:"source" validate:"required,incident_source"`
	Title       string                `json:"title" validate:"required,max=200"`
	Summary     string                `json:"summary"`

	// Severity is honored for manually reported cases; automatic cases always
	// derive it from the session risk score.
	Severity models.IncidentSeverity `json:"severity" validate:"omitempty,incident_severity"`

	RiskScoreAtCreate       float64 `json:"risk_score_at_create"`
	TotalViolationsAtCreate int     `json:"total_violations_at_create"`
	CreatedBy               string  `json:"created_by" validate:"required"`
}

type RecordDecisionRequest struct {
	CaseID    uint               `json:"case_id" validate:"required"`
	Outcome   models.CaseOutcome `json:"outcome" validate:"required,case_outcome"`
	Reason    string             `json:"reason" validate:"required"`
	CloseCase bool               `json:"close_case"`
	DecidedBy string             `json:"decided_by" validate:"required"`
}

type incidentService struct {
	repo      repositories.Repository
	clock     Clock
	locks     *keyedMutex
	audit     AuditSink
	directory CandidateDirectory
	logger    *slog.Logger
	validator *validator.Validator
}

func NewIncidentService(
	repo repositories.Repository,
	clock Clock,
	locks *keyedMutex,
	audit AuditSink,
	directory CandidateDirectory,
	logger *slog.Logger,
	v *validator.Validator,
) *incidentService {
	return &incidentService{
		repo:      repo,
		clock:     clock,
		locks:     locks,
		audit:     audit,
		directory: directory,
		logger:    logger,
		validator: v,
	}
}

func (s *incidentService) Create(ctx context.Context, req *CreateIncidentRequest) (*models.IncidentCase, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	severity := req.Severity
	if req.Source == models.SourceProctorAuto || severity == "" {
		severity = models.SeverityForRiskScore(req.RiskScoreAtCreate)
	}

	now := s.clock.Now()
	var created *models.IncidentCase
	err := s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		seq, err := tx.Counter().Next(ctx, caseCounterName)
		if err != nil {
			return err
		}
		created = &models.IncidentCase{
			CaseNumber:              fmt.Sprintf("IC-%06d", seq),
			ExamID:                  req.ExamID,
			AttemptID:               req.AttemptID,
			CandidateID:             req.CandidateID,
			Status:                  models.IncidentOpen,
			Severity:                severity,
			Source:                  req.Source,
			Title:                   req.Title,
			Summary:                 req.Summary,
			RiskScoreAtCreate:       req.RiskScoreAtCreate,
			TotalViolationsAtCreate: req.TotalViolationsAtCreate,
			AuditFields:             models.AuditFields{CreatedBy: req.CreatedBy, CreatedAt: now, UpdatedBy: req.CreatedBy, UpdatedAt: now},
		}
		if err := tx.Incident().Create(ctx, created); err != nil {
			return err
		}
		return appendTimeline(ctx, tx, created.ID, models.TimelineCreated, req.CreatedBy, req.Title, map[string]interface{}{
			"source":   req.Source,
			"severity": created.Severity,
		}, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create incident case: %w", err)
	}

	s.logger.Info("incident case created",
		"case_id", created.ID,
		"case_number", created.CaseNumber,
		"severity", created.Severity,
		"source", req.Source)

	s.audit.Record(ctx, "incident.created", "incident_case", created.ID, req.CreatedBy,
		map[string]interface{}{"case_number": created.CaseNumber, "attempt_id": req.AttemptID, "severity": created.Severity}, "success")

	return created, nil
}

// CreateFromSession is the automatic path taken when a session's risk score
// crosses the high threshold. At most one case in Open or InReview may exist
// per attempt; a second crossing while one is open is a no-op.
func (s *incidentService) CreateFromSession(ctx context.Context, session *models.ProctorSession, snapshot *models.ProctorRiskSnapshot) (*models.IncidentCase, error) {
	hasOpen, err := s.repo.Incident().HasOpenCaseForAttempt(ctx, session.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open cases: %w", err)
	}
	if hasOpen {
		s.logger.Info("open case already exists, skipping automatic incident",
			"attempt_id", session.AttemptID,
			"session_id", session.ID)
		return nil, nil
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, session.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	return s.Create(ctx, &CreateIncidentRequest{
		ExamID:                  attempt.ExamID,
		AttemptID:               attempt.ID,
		CandidateID:             attempt.CandidateID,
		Source:                  models.SourceProctorAuto,
		Title:                   fmt.Sprintf("Risk threshold exceeded (score %.2f)", snapshot.RiskScore),
		Summary:                 fmt.Sprintf("Proctor session %d accumulated a risk score of %.2f over %d events.", session.ID, snapshot.RiskScore, session.TotalEvents),
		RiskScoreAtCreate:       snapshot.RiskScore,
		TotalViolationsAtCreate: session.TotalViolations,
		CreatedBy:               "risk-engine",
	})
}

func (s *incidentService) GetByID(ctx context.Context, caseID uint) (*models.IncidentCase, error) {
	return s.getCase(ctx, caseID)
}

func (s *incidentService) GetWithTimeline(ctx context.Context, caseID uint) (*models.IncidentCase, error) {
	c, err := s.repo.Incident().GetByIDWithDetails(ctx, caseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get incident case: %w", err)
	}
	return c, nil
}

func (s *incidentService) List(ctx context.Context, filters repositories.IncidentFilters) ([]*models.IncidentCase, int64, error) {
	return s.repo.Incident().List(ctx, filters)
}

func (s *incidentService) Assign(ctx context.Context, caseID uint, assigneeID, actorID string) (*models.IncidentCase, error) {
	unlock := s.locks.Lock(caseKey(caseID))
	defer unlock()

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.IncidentClosed {
		return nil, ErrCaseClosed
	}

	if _, err := s.directory.Resolve(ctx, assigneeID); err != nil {
		return nil, NewValidationError("assignee_id", "unknown reviewer", assigneeID)
	}

	now := s.clock.Now()
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		c.AssignedTo = &assigneeID
		c.UpdatedBy = actorID
		c.UpdatedAt = now
		if err := tx.Incident().Update(ctx, c); err != nil {
			return err
		}
		return appendTimeline(ctx, tx, caseID, models.TimelineAssigned, actorID, "", map[string]interface{}{
			"assignee_id": assigneeID,
		}, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assign case: %w", err)
	}

	s.audit.Record(ctx, "incident.assigned", "incident_case", caseID, actorID,
		map[string]interface{}{"assignee_id": assigneeID}, "success")

	return c, nil
}

func (s *incidentService) ChangeStatus(ctx context.Context, caseID uint, to models.IncidentStatus, actorID, note string) (*models.IncidentCase, error) {
	unlock := s.locks.Lock(caseKey(caseID))
	defer unlock()

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !canTransition(c.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}

	now := s.clock.Now()
	from := c.Status
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		return applyStatusChange(ctx, tx, c, to, actorID, note, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to change case status: %w", err)
	}

	s.audit.Record(ctx, "incident.status_changed", "incident_case", caseID, actorID,
		map[string]interface{}{"from": from, "to": to}, "success")

	return c, nil
}

func (s *incidentService) LinkEvidence(ctx context.Context, caseID uint, evidenceRef, actorID string) (*models.IncidentEvidenceLink, error) {
	if evidenceRef == "" {
		return nil, NewValidationError("evidence_ref", "must not be empty", evidenceRef)
	}

	unlock := s.locks.Lock(caseKey(caseID))
	defer unlock()

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.IncidentClosed {
		return nil, ErrCaseClosed
	}

	now := s.clock.Now()
	link := &models.IncidentEvidenceLink{
		CaseID:      caseID,
		EvidenceRef: evidenceRef,
		LinkedBy:    actorID,
		CreatedAt:   now,
	}
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		if err := tx.Incident().CreateEvidenceLink(ctx, link); err != nil {
			return err
		}
		return appendTimeline(ctx, tx, caseID, models.TimelineEvidenceLinked, actorID, "", map[string]interface{}{
			"evidence_ref": evidenceRef,
		}, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to link evidence: %w", err)
	}

	return link, nil
}

func (s *incidentService) RecordDecision(ctx context.Context, req *RecordDecisionRequest) (*models.IncidentCase, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(caseKey(req.CaseID))
	defer unlock()

	c, err := s.getCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.IncidentInReview {
		return nil, fmt.Errorf("%w: decision requires InReview, case is %s", ErrInvalidState, c.Status)
	}

	now := s.clock.Now()
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		return applyDecision(ctx, tx, c, req.Outcome, req.Reason, req.DecidedBy, req.CloseCase, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}

	s.audit.Record(ctx, "incident.decision_recorded", "incident_case", req.CaseID, req.DecidedBy,
		map[string]interface{}{"outcome": req.Outcome, "closed": req.CloseCase}, "success")

	return c, nil
}

func (s *incidentService) Reopen(ctx context.Context, caseID uint, actorID, reason string) (*models.IncidentCase, error) {
	unlock := s.locks.Lock(caseKey(caseID))
	defer unlock()

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		return applyReopen(ctx, tx, c, actorID, reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "incident.reopened", "incident_case", caseID, actorID,
		map[string]interface{}{"reason": reason}, "success")

	return c, nil
}

func (s *incidentService) AddComment(ctx context.Context, caseID uint, authorID, body string) (*models.IncidentComment, error) {
	if body == "" {
		return nil, NewValidationError("body", "must not be empty", body)
	}

	unlock := s.locks.Lock(caseKey(caseID))
	defer unlock()

	if _, err := s.getCase(ctx, caseID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	comment := &models.IncidentComment{
		CaseID:    caseID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		if err := tx.Incident().CreateComment(ctx, comment); err != nil {
			return err
		}
		return appendTimeline(ctx, tx, caseID, models.TimelineCommentAdded, authorID, "", nil, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	return comment, nil
}

func (s *incidentService) EditComment(ctx context.Context, commentID uint, authorID, body string) (*models.IncidentComment, error) {
	if body == "" {
		return nil, NewValidationError("body", "must not be empty", body)
	}

	comment, err := s.repo.Incident().GetCommentByID(ctx, commentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	if comment.AuthorID != authorID {
		return nil, fmt.Errorf("%w: only the author may edit a comment", ErrInvalidState)
	}

	now := s.clock.Now()
	comment.Body = body
	comment.IsEdited = true
	comment.EditedAt = &now
	if err := s.repo.Incident().UpdateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to edit comment: %w", err)
	}
	return comment, nil
}

func (s *incidentService) getCase(ctx context.Context, caseID uint) (*models.IncidentCase, error) {
	c, err := s.repo.Incident().GetByID(ctx, caseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get incident case: %w", err)
	}
	return c, nil
}

// ===== TX HELPERS =====
// Shared with the appeal service: an approved appeal reopens the case and
// records the superseding decision inside one transaction.

func appendTimeline(ctx context.Context, tx repositories.Repository, caseID uint, entryType models.TimelineEntryType, actorID, note string, detail map[string]interface{}, now time.Time) error {
	var detailJSON []byte
	if detail != nil {
		detailJSON, _ = json.Marshal(detail)
	}
	return tx.Incident().AppendTimeline(ctx, &models.IncidentTimelineEntry{
		CaseID:    caseID,
		Type:      entryType,
		ActorID:   actorID,
		Note:      note,
		Detail:    detailJSON,
		CreatedAt: now,
	})
}

// applyStatusChange performs one legal transition and appends the matching
// timeline entry. Callers hold the case lock.
func applyStatusChange(ctx context.Context, tx repositories.Repository, c *models.IncidentCase, to models.IncidentStatus, actorID, note string, now time.Time) error {
	if !canTransition(c.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}

	from := c.Status
	c.Status = to
	c.UpdatedBy = actorID
	c.UpdatedAt = now
	if err := tx.Incident().Update(ctx, c); err != nil {
		return err
	}
	return appendTimeline(ctx, tx, c.ID, models.TimelineStatusChanged, actorID, note, map[string]interface{}{
		"from": from,
		"to":   to,
	}, now)
}

// applyReopen resets a Resolved or Closed case to Open. The existing outcome
// and decision history are preserved until a new decision supersedes them;
// the case walks the full Open -> InReview path again before that can happen.
func applyReopen(ctx context.Context, tx repositories.Repository, c *models.IncidentCase, actorID, reason string, now time.Time) error {
	if c.Status != models.IncidentResolved && c.Status != models.IncidentClosed {
		return ErrCaseNotReopenable
	}

	from := c.Status
	c.Status = models.IncidentOpen
	c.UpdatedBy = actorID
	c.UpdatedAt = now
	if err := tx.Incident().Update(ctx, c); err != nil {
		return fmt.Errorf("failed to reopen case: %w", err)
	}
	return appendTimeline(ctx, tx, c.ID, models.TimelineReopened, actorID, reason, map[string]interface{}{
		"from": from,
	}, now)
}

// applyDecision appends a decision row, sets the case outcome and moves the
// case to Resolved (or Closed when closeCase is set). Callers must hold the
// case lock and have verified the case is InReview.
func applyDecision(ctx context.Context, tx repositories.Repository, c *models.IncidentCase, outcome models.CaseOutcome, reason, decidedBy string, closeCase bool, now time.Time) error {
	decision := &models.IncidentDecision{
		CaseID:     c.ID,
		Outcome:    outcome,
		Reason:     reason,
		ClosedCase: closeCase,
		DecidedBy:  decidedBy,
		DecidedAt:  now,
	}
	if err := tx.Incident().CreateDecision(ctx, decision); err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}

	c.Outcome = &outcome
	c.ResolvedBy = &decidedBy
	c.ResolvedAt = &now
	c.Status = models.IncidentResolved
	if closeCase {
		c.Status = models.IncidentClosed
	}
	c.UpdatedBy = decidedBy
	c.UpdatedAt = now
	if err := tx.Incident().Update(ctx, c); err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	return appendTimeline(ctx, tx, c.ID, models.TimelineDecisionRecorded, decidedBy, reason, map[string]interface{}{
		"outcome": outcome,
		"closed":  closeCase,
	}, now)
}
