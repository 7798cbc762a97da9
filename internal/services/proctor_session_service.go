package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/validator"
)

// ProctorSessionService manages the monitoring lifecycle bound to an attempt:
// opening, event ingestion (which drives risk scoring synchronously),
// heartbeats, evidence capture and the stale-session sweep.
type ProctorSessionService interface {
	OpenSession(ctx context.Context, req *OpenSessionRequest) (*models.ProctorSession, error)
	GetSession(ctx context.Context, sessionID uint) (*models.ProctorSession, error)
	IngestEvent(ctx context.Context, req *IngestEventRequest) (*models.ProctorEvent, error)
	Heartbeat(ctx context.Context, sessionID uint) error
	CloseSession(ctx context.Context, sessionID uint, closedBy string, status models.ProctorSessionStatus) (*models.ProctorSession, error)
	AttachEvidence(ctx context.Context, req *AttachEvidenceRequest) (*models.ProctorEvidence, error)
	ListEvents(ctx context.Context, sessionID uint) ([]*models.ProctorEvent, error)
	ListEvidence(ctx context.Context, sessionID uint) ([]*models.ProctorEvidence, error)
	RecordDecision(ctx context.Context, req *RecordProctorDecisionRequest) (*models.ProctorDecision, error)

	// SweepStaleSessions cancels Active sessions whose last heartbeat is older
	// than the configured timeout. Runs on a schedule, never on ingestion.
	SweepStaleSessions(ctx context.Context) (int, error)
}

type OpenSessionRequest struct {
	AttemptID uint               `json:"attempt_id" validate:"required"`
	Mode      models.ProctorMode `json:"mode" validate:"required,proctor_mode"`
	OpenedBy  string             `json:"opened_by" validate:"required"`
}

type IngestEventRequest struct {
	SessionID  uint                    `json:"session_id" validate:"required"`
	EventType  models.ProctorEventType `json:"event_type" validate:"required,proctor_event_type"`
	Severity   int                     `json:"severity" validate:"min=1,max=5"`
	OccurredAt time.Time               `json:"occurred_at" validate:"required"`
	Metadata   map[string]interface{}  `json:"metadata"`
	ReportedBy string                  `json:"reported_by"`
}

type AttachEvidenceRequest struct {
	SessionID  uint   `json:"session_id" validate:"required"`
	Kind       string `json:"kind" validate:"required,oneof=screenshot video audio"`
	StorageRef string `json:"storage_ref" validate:"required"`
	Caption    string `json:"caption"`
	AttachedBy string `json:"attached_by" validate:"required"`
}

type RecordProctorDecisionRequest struct {
	SessionID uint                         `json:"session_id" validate:"required"`
	Status    models.ProctorDecisionStatus `json:"status" validate:"required,proctor_decision_status"`
	DecidedBy string                       `json:"decided_by" validate:"required"`
	Finalize  bool                         `json:"finalize"`
}

// incidentOpener is the narrow slice of the incident service the session
// manager needs when a threshold crossing asks for a case.
type incidentOpener interface {
	CreateFromSession(ctx context.Context, session *models.ProctorSession, snapshot *models.ProctorRiskSnapshot) (*models.IncidentCase, error)
}

type proctorSessionService struct {
	repo             repositories.Repository
	engine           RiskEngine
	incidents        incidentOpener
	clock            Clock
	locks            *keyedMutex
	audit            AuditSink
	heartbeatTimeout time.Duration
	logger           *slog.Logger
	validator        *validator.Validator
}

func NewProctorSessionService(
	repo repositories.Repository,
	engine RiskEngine,
	incidents incidentOpener,
	clock Clock,
	locks *keyedMutex,
	audit AuditSink,
	heartbeatTimeout time.Duration,
	logger *slog.Logger,
	v *validator.Validator,
) ProctorSessionService {
	return &proctorSessionService{
		repo:             repo,
		engine:           engine,
		incidents:        incidents,
		clock:            clock,
		locks:            locks,
		audit:            audit,
		heartbeatTimeout: heartbeatTimeout,
		logger:           logger,
		validator:        v,
	}
}

func (s *proctorSessionService) OpenSession(ctx context.Context, req *OpenSessionRequest) (*models.ProctorSession, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	// Serialize opens per (attempt, mode) so two racing opens cannot both
	// pass the exclusivity check.
	unlock := s.locks.Lock(sessionOpenKey(req.AttemptID, string(req.Mode)))
	defer unlock()

	attempt, err := s.repo.Attempt().GetByID(ctx, req.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if !attempt.Status.IsRunning() {
		return nil, ErrAttemptNotRunning
	}

	existing, err := s.repo.Proctor().GetActiveSession(ctx, req.AttemptID, req.Mode)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if existing != nil {
		return nil, ErrActiveSessionExists
	}

	now := s.clock.Now()
	session := &models.ProctorSession{
		AttemptID:       req.AttemptID,
		Mode:            req.Mode,
		Status:          models.SessionActive,
		StartedAt:       now,
		LastHeartbeatAt: &now,
		AuditFields:     models.AuditFields{CreatedBy: req.OpenedBy, CreatedAt: now, UpdatedBy: req.OpenedBy, UpdatedAt: now},
	}
	if err := s.repo.Proctor().CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create proctor session: %w", err)
	}

	s.logger.Info("proctor session opened",
		"session_id", session.ID,
		"attempt_id", req.AttemptID,
		"mode", req.Mode)

	s.audit.Record(ctx, "proctor.session_opened", "proctor_session", session.ID, req.OpenedBy,
		map[string]interface{}{"attempt_id": req.AttemptID, "mode": req.Mode}, "success")

	return session, nil
}

func (s *proctorSessionService) GetSession(ctx context.Context, sessionID uint) (*models.ProctorSession, error) {
	return s.getSession(ctx, sessionID)
}

func (s *proctorSessionService) IngestEvent(ctx context.Context, req *IngestEventRequest) (*models.ProctorEvent, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sessionKey(req.SessionID))
	defer unlock()

	session, err := s.getSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.IsClosed() {
		return nil, ErrSessionClosed
	}

	now := s.clock.Now()
	metadataJSON, _ := json.Marshal(req.Metadata)
	event := &models.ProctorEvent{
		SessionID:  req.SessionID,
		EventType:  req.EventType,
		Severity:   req.Severity,
		OccurredAt: req.OccurredAt,
		Metadata:   metadataJSON,
		CreatedBy:  req.ReportedBy,
		CreatedAt:  now,
	}

	var snapshot *models.ProctorRiskSnapshot
	var crossed bool
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		snapshot, crossed, err = s.engine.Apply(ctx, tx, session, event)
		if err != nil {
			return err
		}
		if err := tx.Proctor().CreateEvent(ctx, event); err != nil {
			return err
		}

		session.TotalEvents++
		if event.IsViolation {
			session.TotalViolations++
		}
		session.LastHeartbeatAt = &now
		session.UpdatedAt = now
		return tx.Proctor().UpdateSession(ctx, session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ingest event: %w", err)
	}

	// Incident creation is a request emitted after the ingestion commit, not
	// part of it: a case-creation failure must never lose the event.
	if crossed {
		if _, err := s.incidents.CreateFromSession(ctx, session, snapshot); err != nil {
			s.logger.Error("automatic incident creation failed",
				"session_id", session.ID,
				"risk_score", session.RiskScore,
				"error", err)
		}
	}

	return event, nil
}

func (s *proctorSessionService) Heartbeat(ctx context.Context, sessionID uint) error {
	unlock := s.locks.Lock(sessionKey(sessionID))
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsClosed() {
		return ErrSessionClosed
	}

	now := s.clock.Now()
	session.LastHeartbeatAt = &now
	session.UpdatedAt = now
	if err := s.repo.Proctor().UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

func (s *proctorSessionService) CloseSession(ctx context.Context, sessionID uint, closedBy string, status models.ProctorSessionStatus) (*models.ProctorSession, error) {
	if status != models.SessionCompleted && status != models.SessionCancelled {
		return nil, NewValidationError("status", "close status must be Completed or Cancelled", status)
	}

	unlock := s.locks.Lock(sessionKey(sessionID))
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsClosed() {
		return nil, ErrSessionClosed
	}

	now := s.clock.Now()
	session.Status = status
	session.EndedAt = &now
	session.UpdatedBy = closedBy
	session.UpdatedAt = now
	if err := s.repo.Proctor().UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}

	s.audit.Record(ctx, "proctor.session_closed", "proctor_session", sessionID, closedBy,
		map[string]interface{}{"status": status, "risk_score": session.RiskScore, "total_events": session.TotalEvents}, "success")

	return session, nil
}

func (s *proctorSessionService) AttachEvidence(ctx context.Context, req *AttachEvidenceRequest) (*models.ProctorEvidence, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	session, err := s.getSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.IsClosed() {
		return nil, ErrSessionClosed
	}

	now := s.clock.Now()
	evidence := &models.ProctorEvidence{
		SessionID:   req.SessionID,
		Kind:        req.Kind,
		StorageRef:  req.StorageRef,
		Caption:     req.Caption,
		AuditFields: models.AuditFields{CreatedBy: req.AttachedBy, CreatedAt: now, UpdatedBy: req.AttachedBy, UpdatedAt: now},
	}
	if err := s.repo.Proctor().CreateEvidence(ctx, evidence); err != nil {
		return nil, fmt.Errorf("failed to attach evidence: %w", err)
	}
	return evidence, nil
}

func (s *proctorSessionService) ListEvents(ctx context.Context, sessionID uint) ([]*models.ProctorEvent, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.Proctor().ListEventsBySession(ctx, sessionID)
}

func (s *proctorSessionService) ListEvidence(ctx context.Context, sessionID uint) ([]*models.ProctorEvidence, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.Proctor().ListEvidenceBySession(ctx, sessionID)
}

func (s *proctorSessionService) RecordDecision(ctx context.Context, req *RecordProctorDecisionRequest) (*models.ProctorDecision, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sessionKey(req.SessionID))
	defer unlock()

	if _, err := s.getSession(ctx, req.SessionID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	decision, err := s.repo.Proctor().GetDecisionBySession(ctx, req.SessionID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	if decision == nil {
		decision = &models.ProctorDecision{
			SessionID:   req.SessionID,
			AuditFields: models.AuditFields{CreatedBy: req.DecidedBy, CreatedAt: now},
		}
	}
	if decision.IsFinalized {
		return nil, ErrDecisionFinalized
	}

	decision.Status = req.Status
	decision.DecidedBy = &req.DecidedBy
	decision.DecidedAt = &now
	decision.IsFinalized = req.Finalize
	decision.UpdatedBy = req.DecidedBy
	decision.UpdatedAt = now
	if err := s.repo.Proctor().SaveDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("failed to save decision: %w", err)
	}

	s.audit.Record(ctx, "proctor.decision_recorded", "proctor_session", req.SessionID, req.DecidedBy,
		map[string]interface{}{"status": req.Status, "finalized": req.Finalize}, "success")

	return decision, nil
}

func (s *proctorSessionService) SweepStaleSessions(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.heartbeatTimeout)
	stale, err := s.repo.Proctor().ListStaleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	swept := 0
	for _, session := range stale {
		if _, err := s.CloseSession(ctx, session.ID, "system", models.SessionCancelled); err != nil {
			// A session closed between query and lock acquisition is fine.
			if errors.Is(err, ErrSessionClosed) {
				continue
			}
			s.logger.Error("failed to sweep stale session", "session_id", session.ID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *proctorSessionService) getSession(ctx context.Context, sessionID uint) (*models.ProctorSession, error) {
	session, err := s.repo.Proctor().GetSessionByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}
