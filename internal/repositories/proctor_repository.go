package repositories

import (
	"context"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
)

// ProctorRepository owns sessions and everything a session owns: events,
// evidence, risk snapshots and the 1:1 decision row.
type ProctorRepository interface {
	// Sessions
	CreateSession(ctx context.Context, session *models.ProctorSession) error
	GetSessionByID(ctx context.Context, id uint) (*models.ProctorSession, error)
	UpdateSession(ctx context.Context, session *models.ProctorSession) error
	GetActiveSession(ctx context.Context, attemptID uint, mode models.ProctorMode) (*models.ProctorSession, error)
	GetActiveSessionsByAttempt(ctx context.Context, attemptID uint) ([]*models.ProctorSession, error)
	ListStaleSessions(ctx context.Context, heartbeatBefore time.Time) ([]*models.ProctorSession, error)

	// Events (append-only, ordered by occurrence per session)
	CreateEvent(ctx context.Context, event *models.ProctorEvent) error
	ListEventsBySession(ctx context.Context, sessionID uint) ([]*models.ProctorEvent, error)

	// Evidence
	CreateEvidence(ctx context.Context, evidence *models.ProctorEvidence) error
	ListEvidenceBySession(ctx context.Context, sessionID uint) ([]*models.ProctorEvidence, error)

	// Risk rules. ListActiveRules is ordered by priority (desc) for reporting
	// tie-break; GetRulesByIDs serves snapshot replay.
	ListActiveRules(ctx context.Context, eventType *models.ProctorEventType) ([]*models.ProctorRiskRule, error)
	GetRulesByIDs(ctx context.Context, ids []uint) ([]*models.ProctorRiskRule, error)
	CreateRule(ctx context.Context, rule *models.ProctorRiskRule) error
	DeactivateRule(ctx context.Context, id uint, updatedBy string) error

	// Snapshots (immutable once written; latest is authoritative)
	CreateSnapshot(ctx context.Context, snapshot *models.ProctorRiskSnapshot) error
	GetLatestSnapshot(ctx context.Context, sessionID uint) (*models.ProctorRiskSnapshot, error)
	ListSnapshotsBySession(ctx context.Context, sessionID uint) ([]*models.ProctorRiskSnapshot, error)

	// Decision (1:1 with session)
	GetDecisionBySession(ctx context.Context, sessionID uint) (*models.ProctorDecision, error)
	SaveDecision(ctx context.Context, decision *models.ProctorDecision) error
}
