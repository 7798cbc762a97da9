package services

import (
	"errors"

	apperrors "github.com/OrbitXSolutions/exam-integrity-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrInvalidTransition = errors.New("illegal state transition")
	ErrConflict          = errors.New("resource conflict")
	ErrValidationFailed  = errors.New("validation failed")
	ErrInternalError     = errors.New("internal server error")

	// Attempt timer errors
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptTerminal     = errors.New("attempt is already in a terminal state")
	ErrAttemptNotPaused    = errors.New("attempt is not paused")
	ErrAttemptNotRunning   = errors.New("attempt is not in progress")
	ErrAttemptTimeExpired  = errors.New("attempt time has expired")
	ErrScheduleEnded       = errors.New("exam schedule has ended")
	ErrExtraTimeOutOfRange = errors.New("extra time must be between 1 and 480 minutes")

	// Proctor session errors
	ErrSessionNotFound     = errors.New("proctor session not found")
	ErrSessionClosed       = errors.New("proctor session is already closed")
	ErrActiveSessionExists = errors.New("an active proctor session already exists for this attempt and mode")
	ErrDecisionFinalized   = errors.New("proctor decision is finalized")

	// Incident case errors
	ErrCaseNotFound      = errors.New("incident case not found")
	ErrCaseClosed        = errors.New("incident case is closed")
	ErrCaseNotReopenable = errors.New("incident case can only be reopened from Resolved or Closed")
	ErrCommentNotFound   = errors.New("comment not found")

	// Appeal errors
	ErrAppealNotFound     = errors.New("appeal not found")
	ErrAppealNotOpen      = errors.New("appeal is not open for review")
	ErrOpenAppealExists   = errors.New("an open appeal already exists for this case")
	ErrCaseNotDecided     = errors.New("case has no outcome to appeal")
	ErrNewOutcomeRequired = errors.New("approved appeal requires a new outcome")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

// ===== ERROR CLASSIFIERS =====
// Handlers use these to translate service errors into transport responses;
// the core never exposes transport concerns itself.

// IsNotFound checks if error represents a "not found" condition
// (entity absent or soft-deleted).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrCaseNotFound) ||
		errors.Is(err, ErrCommentNotFound) ||
		errors.Is(err, ErrAppealNotFound)
}

// IsInvalidState checks if error represents an operation that is not legal
// from the entity's current state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAttemptTerminal) ||
		errors.Is(err, ErrAttemptNotPaused) ||
		errors.Is(err, ErrAttemptNotRunning) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrDecisionFinalized) ||
		errors.Is(err, ErrCaseNotDecided) ||
		errors.Is(err, ErrAppealNotOpen)
}

// IsInvalidTransition checks if error represents an illegal state-machine jump.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrCaseClosed) ||
		errors.Is(err, ErrCaseNotReopenable)
}

// IsConflict checks if error represents a uniqueness or exclusivity violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrActiveSessionExists) ||
		errors.Is(err, ErrOpenAppealExists)
}

// IsValidation checks if error represents a validation failure.
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrExtraTimeOutOfRange) ||
		errors.Is(err, ErrNewOutcomeRequired) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsScheduleViolation checks if error represents a wall-clock window that no
// longer permits the operation.
func IsScheduleViolation(err error) bool {
	return errors.Is(err, ErrScheduleEnded) ||
		errors.Is(err, ErrAttemptTimeExpired)
}
