package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
)

// RuleCache holds the active rule set per event type so the hot ingestion
// path skips the database. Invalidate on any rule mutation.
type RuleCache interface {
	GetRules(ctx context.Context, eventType models.ProctorEventType) ([]*models.ProctorRiskRule, bool)
	SetRules(ctx context.Context, eventType models.ProctorEventType, rules []*models.ProctorRiskRule)
	Invalidate(ctx context.Context)
}

// RiskEngine turns proctor events into a cumulative session risk score.
// Scoring is synchronous with ingestion: by the time IngestEvent returns, the
// session score reflects the new event.
type RiskEngine interface {
	// Apply scores one event against the active rule set, persists a snapshot
	// through tx and returns it together with whether this event pushed the
	// score across the high-risk threshold (a strict upward crossing; events
	// while already above the threshold do not re-trigger).
	Apply(ctx context.Context, tx repositories.Repository, session *models.ProctorSession, event *models.ProctorEvent) (*models.ProctorRiskSnapshot, bool, error)

	// ReplayScore recomputes the session score from its snapshot chain and
	// compares it against the stored value. Deactivated rules still resolve.
	ReplayScore(ctx context.Context, sessionID uint) (*ReplayResult, error)

	AddRule(ctx context.Context, req *AddRuleRequest) (*models.ProctorRiskRule, error)
	DeactivateRule(ctx context.Context, ruleID uint, adminID string) error
	ListActiveRules(ctx context.Context) ([]*models.ProctorRiskRule, error)
}

type AddRuleRequest struct {
	EventType  models.ProctorEventType `json:"event_type" validate:"required,proctor_event_type"`
	RiskPoints float64                 `json:"risk_points" validate:"required,gt=0"`
	Priority   int                     `json:"priority"`
	RuleConfig map[string]interface{}  `json:"rule_config"`
	CreatedBy  string                  `json:"created_by" validate:"required"`
}

type ReplayResult struct {
	SessionID     uint    `json:"session_id"`
	StoredScore   float64 `json:"stored_score"`
	ReplayedScore float64 `json:"replayed_score"`
	Match         bool    `json:"match"`
	SnapshotCount int     `json:"snapshot_count"`
}

type riskEngine struct {
	repo          repositories.Repository
	cache         RuleCache
	highThreshold float64
	logger        *slog.Logger
}

func NewRiskEngine(repo repositories.Repository, cache RuleCache, highThreshold float64, logger *slog.Logger) RiskEngine {
	return &riskEngine{
		repo:          repo,
		cache:         cache,
		highThreshold: highThreshold,
		logger:        logger,
	}
}

// round2 keeps scores stable across accumulation order. Two decimals is
// plenty for rule points expressed in halves and quarters.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (e *riskEngine) Apply(ctx context.Context, tx repositories.Repository, session *models.ProctorSession, event *models.ProctorEvent) (*models.ProctorRiskSnapshot, bool, error) {
	rules, err := e.rulesFor(ctx, event.EventType)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load risk rules: %w", err)
	}

	var delta float64
	triggeredIDs := make([]uint, 0, len(rules))
	for _, rule := range rules {
		delta += rule.RiskPoints
		triggeredIDs = append(triggeredIDs, rule.ID)
	}

	// An event is a violation iff at least one active rule assigned it points.
	event.IsViolation = delta > 0

	previousScore := session.RiskScore
	breakdown, err := e.nextBreakdown(ctx, tx, session.ID, event.EventType, delta)
	if err != nil {
		return nil, false, err
	}

	newScore := round2(previousScore + delta)
	breakdownJSON, _ := json.Marshal(breakdown)
	triggeredJSON, _ := json.Marshal(triggeredIDs)

	snapshot := &models.ProctorRiskSnapshot{
		SessionID:      session.ID,
		RiskScore:      newScore,
		EventBreakdown: breakdownJSON,
		TriggeredRules: triggeredJSON,
		CalculatedAt:   event.OccurredAt,
		CalculatedBy:   "risk-engine",
	}
	if err := tx.Proctor().CreateSnapshot(ctx, snapshot); err != nil {
		return nil, false, fmt.Errorf("failed to persist risk snapshot: %w", err)
	}

	session.RiskScore = newScore

	crossed := previousScore < e.highThreshold && newScore >= e.highThreshold
	if crossed {
		e.logger.Warn("risk threshold crossed",
			"session_id", session.ID,
			"previous_score", previousScore,
			"new_score", newScore,
			"threshold", e.highThreshold)
	}
	return snapshot, crossed, nil
}

// nextBreakdown carries the cumulative per-event-type points forward from the
// latest snapshot and adds this event's delta.
func (e *riskEngine) nextBreakdown(ctx context.Context, tx repositories.Repository, sessionID uint, eventType models.ProctorEventType, delta float64) (map[string]float64, error) {
	breakdown := make(map[string]float64)
	latest, err := tx.Proctor().GetLatestSnapshot(ctx, sessionID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if latest != nil && len(latest.EventBreakdown) > 0 {
		if err := json.Unmarshal(latest.EventBreakdown, &breakdown); err != nil {
			return nil, fmt.Errorf("corrupt event breakdown on snapshot %d: %w", latest.ID, err)
		}
	}
	breakdown[string(eventType)] = round2(breakdown[string(eventType)] + delta)
	return breakdown, nil
}

func (e *riskEngine) rulesFor(ctx context.Context, eventType models.ProctorEventType) ([]*models.ProctorRiskRule, error) {
	if rules, ok := e.cache.GetRules(ctx, eventType); ok {
		return rules, nil
	}
	rules, err := e.repo.Proctor().ListActiveRules(ctx, &eventType)
	if err != nil {
		return nil, err
	}
	e.cache.SetRules(ctx, eventType, rules)
	return rules, nil
}

func (e *riskEngine) ReplayScore(ctx context.Context, sessionID uint) (*ReplayResult, error) {
	session, err := e.repo.Proctor().GetSessionByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	snapshots, err := e.repo.Proctor().ListSnapshotsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var replayed float64
	for _, snap := range snapshots {
		var ruleIDs []uint
		if len(snap.TriggeredRules) > 0 {
			if err := json.Unmarshal(snap.TriggeredRules, &ruleIDs); err != nil {
				return nil, fmt.Errorf("corrupt triggered rules on snapshot %d: %w", snap.ID, err)
			}
		}
		if len(ruleIDs) == 0 {
			continue
		}
		// Unscoped lookup: rules deactivated or removed since the snapshot
		// was written must still resolve to their original points.
		rules, err := e.repo.Proctor().GetRulesByIDs(ctx, ruleIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rules for snapshot %d: %w", snap.ID, err)
		}
		for _, rule := range rules {
			replayed += rule.RiskPoints
		}
		replayed = round2(replayed)
	}

	return &ReplayResult{
		SessionID:     sessionID,
		StoredScore:   session.RiskScore,
		ReplayedScore: replayed,
		Match:         session.RiskScore == replayed,
		SnapshotCount: len(snapshots),
	}, nil
}

func (e *riskEngine) AddRule(ctx context.Context, req *AddRuleRequest) (*models.ProctorRiskRule, error) {
	if req.RiskPoints <= 0 {
		return nil, NewValidationError("risk_points", "must be greater than zero", req.RiskPoints)
	}

	configJSON, _ := json.Marshal(req.RuleConfig)
	rule := &models.ProctorRiskRule{
		EventType:  req.EventType,
		RiskPoints: round2(req.RiskPoints),
		Priority:   req.Priority,
		IsActive:   true,
		Version:    1,
		RuleConfig: configJSON,
		AuditFields: models.AuditFields{
			CreatedBy: req.CreatedBy,
			UpdatedBy: req.CreatedBy,
		},
	}
	if err := e.repo.Proctor().CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create risk rule: %w", err)
	}

	e.cache.Invalidate(ctx)
	e.logger.Info("risk rule created", "rule_id", rule.ID, "event_type", req.EventType, "risk_points", rule.RiskPoints)
	return rule, nil
}

func (e *riskEngine) DeactivateRule(ctx context.Context, ruleID uint, adminID string) error {
	if err := e.repo.Proctor().DeactivateRule(ctx, ruleID, adminID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to deactivate risk rule: %w", err)
	}
	e.cache.Invalidate(ctx)
	e.logger.Info("risk rule deactivated", "rule_id", ruleID, "admin_id", adminID)
	return nil
}

func (e *riskEngine) ListActiveRules(ctx context.Context) ([]*models.ProctorRiskRule, error) {
	return e.repo.Proctor().ListActiveRules(ctx, nil)
}
