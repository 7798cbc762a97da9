package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/validator"
)

// MaxExtraTimeMinutes bounds a single AddTime grant.
const MaxExtraTimeMinutes = 480

// AttemptTimerService governs how long a candidate may work and how admins
// intervene. Remaining time is always computed on demand; there is no
// background countdown.
type AttemptTimerService interface {
	Start(ctx context.Context, req *StartAttemptRequest) (*models.Attempt, error)
	Submit(ctx context.Context, attemptID uint, candidateID string) (*models.Attempt, error)
	Pause(ctx context.Context, attemptID uint, adminID string, reason string) (*models.Attempt, error)
	Resume(ctx context.Context, attemptID uint, adminID string) (*models.Attempt, error)
	ForceEnd(ctx context.Context, attemptID uint, adminID string, reason string) (*models.Attempt, error)
	AddTime(ctx context.Context, attemptID uint, adminID string, extraMinutes int, reason string) (*models.Attempt, error)
	GetTimer(ctx context.Context, attemptID uint) (*AttemptTimerView, error)

	// ExpireOverdue is the scheduled sweep: every non-terminal attempt whose
	// deadline has passed moves to Expired and its sessions complete.
	ExpireOverdue(ctx context.Context) (int, error)
}

type StartAttemptRequest struct {
	CandidateID     string     `json:"candidate_id" validate:"required"`
	ExamID          uint       `json:"exam_id" validate:"required"`
	DurationSeconds int        `json:"duration_seconds" validate:"required,min=60"`
	ScheduleEndAt   *time.Time `json:"schedule_end_at"`
	IPAddress       string     `json:"ip_address"`
	DeviceInfo      string     `json:"device_info"`
}

// ValidateBusiness caps a single attempt window at 8 hours.
func (r *StartAttemptRequest) ValidateBusiness() validator.ValidationErrors {
	var errs validator.ValidationErrors
	if r.DurationSeconds > 28800 {
		errs = append(errs, *validator.NewValidationErrorWithRule("duration_seconds", "must be between 60 and 28800 seconds", "attempt_duration", r.DurationSeconds))
	}
	return errs
}

// AttemptTimerView is the read model for candidate- and admin-facing
// countdowns. Flags are recomputed on every read, never cached.
type AttemptTimerView struct {
	AttemptID        uint                 `json:"attempt_id"`
	Status           models.AttemptStatus `json:"status"`
	RemainingSeconds int64                `json:"remaining_seconds"`
	ExpiresAt        *time.Time           `json:"expires_at"`
	ExtraTimeSeconds int                  `json:"extra_time_seconds"`
	ResumeCount      int                  `json:"resume_count"`
	CanForceEnd      bool                 `json:"can_force_end"`
	CanResume        bool                 `json:"can_resume"`
	CanAddTime       bool                 `json:"can_add_time"`
}

type attemptTimerService struct {
	repo      repositories.Repository
	clock     Clock
	locks     *keyedMutex
	audit     AuditSink
	notifier  NotificationChannel
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAttemptTimerService(
	repo repositories.Repository,
	clock Clock,
	locks *keyedMutex,
	audit AuditSink,
	notifier NotificationChannel,
	logger *slog.Logger,
	v *validator.Validator,
) AttemptTimerService {
	return &attemptTimerService{
		repo:      repo,
		clock:     clock,
		locks:     locks,
		audit:     audit,
		notifier:  notifier,
		logger:    logger,
		validator: v,
	}
}

func (s *attemptTimerService) Start(ctx context.Context, req *StartAttemptRequest) (*models.Attempt, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expires := now.Add(time.Duration(req.DurationSeconds) * time.Second)

	var attempt *models.Attempt
	err := s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		number, err := tx.Attempt().NextAttemptNumber(ctx, req.CandidateID, req.ExamID)
		if err != nil {
			return err
		}
		attempt = &models.Attempt{
			CandidateID:    req.CandidateID,
			ExamID:         req.ExamID,
			AttemptNumber:  number,
			Status:         models.AttemptInProgress,
			StartedAt:      now,
			ExpiresAt:      &expires,
			ScheduleEndAt:  req.ScheduleEndAt,
			LastActivityAt: &now,
			IPAddress:      req.IPAddress,
			DeviceInfo:     req.DeviceInfo,
			AuditFields:    models.AuditFields{CreatedBy: req.CandidateID, CreatedAt: now, UpdatedBy: req.CandidateID, UpdatedAt: now},
		}
		return tx.Attempt().Create(ctx, attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("attempt started",
		"attempt_id", attempt.ID,
		"candidate_id", req.CandidateID,
		"exam_id", req.ExamID,
		"expires_at", expires)

	s.audit.Record(ctx, "attempt.started", "attempt", attempt.ID, req.CandidateID,
		map[string]interface{}{"exam_id": req.ExamID, "attempt_number": attempt.AttemptNumber}, "success")

	return attempt, nil
}

func (s *attemptTimerService) Submit(ctx context.Context, attemptID uint, candidateID string) (*models.Attempt, error) {
	unlock := s.locks.Lock(attemptKey(attemptID))
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return nil, ErrAttemptTerminal
	}

	now := s.clock.Now()
	prev := attempt.Status
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		attempt.Status = models.AttemptSubmitted
		attempt.SubmittedAt = &now
		attempt.LastActivityAt = &now
		attempt.UpdatedBy = candidateID
		attempt.UpdatedAt = now
		if err := tx.Attempt().Update(ctx, attempt); err != nil {
			return err
		}
		return closeActiveSessions(ctx, tx, attemptID, models.SessionCompleted, candidateID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}

	s.audit.Record(ctx, "attempt.submitted", "attempt", attemptID, candidateID,
		map[string]interface{}{"previous_status": prev}, "success")

	return attempt, nil
}

func (s *attemptTimerService) Pause(ctx context.Context, attemptID uint, adminID string, reason string) (*models.Attempt, error) {
	unlock := s.locks.Lock(attemptKey(attemptID))
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return nil, ErrAttemptTerminal
	}
	if !attempt.Status.IsRunning() {
		return nil, ErrAttemptNotRunning
	}

	now := s.clock.Now()
	prev := attempt.Status
	attempt.Status = models.AttemptPaused
	attempt.LastActivityAt = &now
	attempt.UpdatedBy = adminID
	attempt.UpdatedAt = now
	if err := s.repo.Attempt().Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to pause attempt: %w", err)
	}

	s.audit.Record(ctx, "attempt.paused", "attempt", attemptID, adminID,
		map[string]interface{}{"previous_status": prev, "reason": reason}, "success")

	return attempt, nil
}

func (s *attemptTimerService) Resume(ctx context.Context, attemptID uint, adminID string) (*models.Attempt, error) {
	unlock := s.locks.Lock(attemptKey(attemptID))
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptPaused {
		return nil, ErrAttemptNotPaused
	}

	now := s.clock.Now()
	if attempt.ScheduleEndAt != nil && !now.Before(*attempt.ScheduleEndAt) {
		return nil, ErrScheduleEnded
	}
	if attempt.RemainingSeconds(now) <= 0 {
		return nil, ErrAttemptTimeExpired
	}

	attempt.Status = models.AttemptResumed
	attempt.ResumeCount++
	attempt.LastActivityAt = &now
	attempt.UpdatedBy = adminID
	attempt.UpdatedAt = now
	if err := s.repo.Attempt().Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to resume attempt: %w", err)
	}

	s.logger.Info("attempt resumed",
		"attempt_id", attemptID,
		"resume_count", attempt.ResumeCount,
		"admin_id", adminID)

	s.audit.Record(ctx, "attempt.resumed", "attempt", attemptID, adminID,
		map[string]interface{}{"resume_count": attempt.ResumeCount}, "success")

	return attempt, nil
}

func (s *attemptTimerService) ForceEnd(ctx context.Context, attemptID uint, adminID string, reason string) (*models.Attempt, error) {
	unlock := s.locks.Lock(attemptKey(attemptID))
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return nil, ErrAttemptTerminal
	}
	if !attempt.CanForceEnd() {
		return nil, ErrInvalidState
	}

	now := s.clock.Now()
	prev := attempt.Status
	// The status change and the cancellation of any active proctor session
	// must land in the same transaction.
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		attempt.Status = models.AttemptForceSubmitted
		attempt.SubmittedAt = &now
		attempt.ForceSubmittedBy = &adminID
		attempt.ForceSubmittedAt = &now
		attempt.LastActivityAt = &now
		attempt.UpdatedBy = adminID
		attempt.UpdatedAt = now
		if err := tx.Attempt().Update(ctx, attempt); err != nil {
			return err
		}
		return closeActiveSessions(ctx, tx, attemptID, models.SessionCancelled, adminID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to force-end attempt: %w", err)
	}

	s.logger.Warn("attempt force-ended",
		"attempt_id", attemptID,
		"admin_id", adminID,
		"previous_status", prev,
		"reason", reason)

	s.audit.Record(ctx, "attempt.force_ended", "attempt", attemptID, adminID,
		map[string]interface{}{"previous_status": prev, "reason": reason}, "success")

	return attempt, nil
}

func (s *attemptTimerService) AddTime(ctx context.Context, attemptID uint, adminID string, extraMinutes int, reason string) (*models.Attempt, error) {
	if extraMinutes <= 0 || extraMinutes > MaxExtraTimeMinutes {
		return nil, ErrExtraTimeOutOfRange
	}

	unlock := s.locks.Lock(attemptKey(attemptID))
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return nil, ErrAttemptTerminal
	}
	if !attempt.CanAddTime() {
		return nil, ErrAttemptNotRunning
	}

	now := s.clock.Now()
	deltaSeconds := extraMinutes * 60
	extended := attempt.ExpiresAt.Add(time.Duration(deltaSeconds) * time.Second)
	attempt.ExpiresAt = &extended
	attempt.ExtraTimeSeconds += deltaSeconds
	attempt.LastActivityAt = &now
	attempt.UpdatedBy = adminID
	attempt.UpdatedAt = now
	if err := s.repo.Attempt().Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to add time: %w", err)
	}

	s.audit.Record(ctx, "attempt.time_added", "attempt", attemptID, adminID,
		map[string]interface{}{"extra_minutes": extraMinutes, "reason": reason, "expires_at": extended}, "success")

	// Best effort: the candidate's live countdown gets the new figure, but a
	// push failure never rolls back the timer mutation.
	if err := s.notifier.PushToAttempt(ctx, attemptID, "time_added", map[string]interface{}{
		"remaining_seconds":  attempt.RemainingSeconds(now),
		"extra_time_seconds": attempt.ExtraTimeSeconds,
	}); err != nil {
		s.logger.Warn("time_added push failed", "attempt_id", attemptID, "error", err)
	}

	return attempt, nil
}

func (s *attemptTimerService) GetTimer(ctx context.Context, attemptID uint) (*AttemptTimerView, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return &AttemptTimerView{
		AttemptID:        attempt.ID,
		Status:           attempt.Status,
		RemainingSeconds: attempt.RemainingSeconds(now),
		ExpiresAt:        attempt.ExpiresAt,
		ExtraTimeSeconds: attempt.ExtraTimeSeconds,
		ResumeCount:      attempt.ResumeCount,
		CanForceEnd:      attempt.CanForceEnd(),
		CanResume:        attempt.CanResume(now),
		CanAddTime:       attempt.CanAddTime(),
	}, nil
}

func (s *attemptTimerService) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.repo.Attempt().GetExpiredRunning(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue attempts: %w", err)
	}

	expired := 0
	for _, attempt := range overdue {
		if err := s.expireOne(ctx, attempt.ID); err != nil {
			s.logger.Error("failed to expire attempt", "attempt_id", attempt.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *attemptTimerService) expireOne(ctx context.Context, attemptID uint) error {
	unlock := s.locks.Lock(attemptKey(attemptID))
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	// Re-check under the lock: an admin may have force-ended or extended the
	// attempt between the sweep query and this point.
	if attempt.Status.IsTerminal() || attempt.RemainingSeconds(now) > 0 {
		return nil
	}

	prev := attempt.Status
	err = s.repo.WithTx(ctx, func(tx repositories.Repository) error {
		attempt.Status = models.AttemptExpired
		attempt.SubmittedAt = &now
		attempt.UpdatedBy = "system"
		attempt.UpdatedAt = now
		if err := tx.Attempt().Update(ctx, attempt); err != nil {
			return err
		}
		return closeActiveSessions(ctx, tx, attemptID, models.SessionCompleted, "system", now)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, "attempt.expired", "attempt", attemptID, "system",
		map[string]interface{}{"previous_status": prev}, "success")
	return nil
}

func (s *attemptTimerService) getAttempt(ctx context.Context, attemptID uint) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

// closeActiveSessions moves every Active proctor session of the attempt to
// the given terminal status within the caller's transaction.
func closeActiveSessions(ctx context.Context, tx repositories.Repository, attemptID uint, status models.ProctorSessionStatus, actorID string, now time.Time) error {
	sessions, err := tx.Proctor().GetActiveSessionsByAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		session.Status = status
		session.EndedAt = &now
		session.UpdatedBy = actorID
		session.UpdatedAt = now
		if err := tx.Proctor().UpdateSession(ctx, session); err != nil {
			return err
		}
	}
	return nil
}
