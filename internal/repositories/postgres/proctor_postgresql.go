package postgres

import (
	"context"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProctorPostgreSQL struct {
	db *gorm.DB
}

// ===== SESSIONS =====

func (p *ProctorPostgreSQL) CreateSession(ctx context.Context, session *models.ProctorSession) error {
	return p.db.WithContext(ctx).Create(session).Error
}

func (p *ProctorPostgreSQL) GetSessionByID(ctx context.Context, id uint) (*models.ProctorSession, error) {
	var session models.ProctorSession
	if err := p.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (p *ProctorPostgreSQL) UpdateSession(ctx context.Context, session *models.ProctorSession) error {
	return p.db.WithContext(ctx).Save(session).Error
}

func (p *ProctorPostgreSQL) GetActiveSession(ctx context.Context, attemptID uint, mode models.ProctorMode) (*models.ProctorSession, error) {
	var session models.ProctorSession
	if err := p.db.WithContext(ctx).
		Where("attempt_id = ? AND mode = ? AND status = ?", attemptID, mode, models.SessionActive).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (p *ProctorPostgreSQL) GetActiveSessionsByAttempt(ctx context.Context, attemptID uint) ([]*models.ProctorSession, error) {
	var sessions []*models.ProctorSession
	if err := p.db.WithContext(ctx).
		Where("attempt_id = ? AND status = ?", attemptID, models.SessionActive).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (p *ProctorPostgreSQL) ListStaleSessions(ctx context.Context, heartbeatBefore time.Time) ([]*models.ProctorSession, error) {
	var sessions []*models.ProctorSession
	if err := p.db.WithContext(ctx).
		Where("status = ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)", models.SessionActive, heartbeatBefore).
		Where("started_at < ?", heartbeatBefore).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// ===== EVENTS =====

func (p *ProctorPostgreSQL) CreateEvent(ctx context.Context, event *models.ProctorEvent) error {
	return p.db.WithContext(ctx).Create(event).Error
}

func (p *ProctorPostgreSQL) ListEventsBySession(ctx context.Context, sessionID uint) ([]*models.ProctorEvent, error) {
	var events []*models.ProctorEvent
	if err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at asc, id asc").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ===== EVIDENCE =====

func (p *ProctorPostgreSQL) CreateEvidence(ctx context.Context, evidence *models.ProctorEvidence) error {
	return p.db.WithContext(ctx).Create(evidence).Error
}

func (p *ProctorPostgreSQL) ListEvidenceBySession(ctx context.Context, sessionID uint) ([]*models.ProctorEvidence, error) {
	var evidence []*models.ProctorEvidence
	if err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id asc").
		Find(&evidence).Error; err != nil {
		return nil, err
	}
	return evidence, nil
}

// ===== RISK RULES =====

func (p *ProctorPostgreSQL) ListActiveRules(ctx context.Context, eventType *models.ProctorEventType) ([]*models.ProctorRiskRule, error) {
	var rules []*models.ProctorRiskRule
	query := p.db.WithContext(ctx).Where("is_active = ?", true)
	if eventType != nil {
		query = query.Where("event_type = ?", *eventType)
	}
	if err := query.Order("priority desc, id asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (p *ProctorPostgreSQL) GetRulesByIDs(ctx context.Context, ids []uint) ([]*models.ProctorRiskRule, error) {
	var rules []*models.ProctorRiskRule
	// Unscoped: replay must see rules that were deactivated or soft-deleted
	// after a snapshot referenced them.
	if err := p.db.WithContext(ctx).Unscoped().
		Where("id IN ?", ids).
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (p *ProctorPostgreSQL) CreateRule(ctx context.Context, rule *models.ProctorRiskRule) error {
	return p.db.WithContext(ctx).Create(rule).Error
}

func (p *ProctorPostgreSQL) DeactivateRule(ctx context.Context, id uint, updatedBy string) error {
	return p.db.WithContext(ctx).Model(&models.ProctorRiskRule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "updated_by": updatedBy}).Error
}

// ===== SNAPSHOTS =====

func (p *ProctorPostgreSQL) CreateSnapshot(ctx context.Context, snapshot *models.ProctorRiskSnapshot) error {
	return p.db.WithContext(ctx).Create(snapshot).Error
}

func (p *ProctorPostgreSQL) GetLatestSnapshot(ctx context.Context, sessionID uint) (*models.ProctorRiskSnapshot, error) {
	var snapshot models.ProctorRiskSnapshot
	if err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id desc").
		First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (p *ProctorPostgreSQL) ListSnapshotsBySession(ctx context.Context, sessionID uint) ([]*models.ProctorRiskSnapshot, error) {
	var snapshots []*models.ProctorRiskSnapshot
	if err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id asc").
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

// ===== DECISION =====

func (p *ProctorPostgreSQL) GetDecisionBySession(ctx context.Context, sessionID uint) (*models.ProctorDecision, error) {
	var decision models.ProctorDecision
	if err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&decision).Error; err != nil {
		return nil, err
	}
	return &decision, nil
}

func (p *ProctorPostgreSQL) SaveDecision(ctx context.Context, decision *models.ProctorDecision) error {
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(decision).Error
}
