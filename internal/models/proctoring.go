package models

import (
	"time"

	"gorm.io/datatypes"
)

type ProctorMode string

const (
	ProctorModeSoft     ProctorMode = "Soft"
	ProctorModeAdvanced ProctorMode = "Advanced"
)

type ProctorSessionStatus string

const (
	SessionActive    ProctorSessionStatus = "Active"
	SessionCompleted ProctorSessionStatus = "Completed"
	SessionCancelled ProctorSessionStatus = "Cancelled"
)

type ProctorEventType string

const (
	EventTabSwitch        ProctorEventType = "tab_switch"
	EventWindowBlur       ProctorEventType = "window_blur"
	EventFullscreenExit   ProctorEventType = "fullscreen_exit"
	EventMultipleFaces    ProctorEventType = "multiple_faces"
	EventNoFace           ProctorEventType = "no_face"
	EventSuspiciousObject ProctorEventType = "suspicious_object"
	EventAudioDetection   ProctorEventType = "audio_detection"
	EventRightClick       ProctorEventType = "right_click"
	EventCopyPaste        ProctorEventType = "copy_paste"
	EventScreenshot       ProctorEventType = "screenshot"
)

// ProctorSession is the monitoring context bound 1:1 to an Attempt+Mode pair.
// At most one Active session may exist per (attempt, mode).
type ProctorSession struct {
	ID        uint                 `json:"id" gorm:"primaryKey"`
	AttemptID uint                 `json:"attempt_id" gorm:"not null;index:idx_session_attempt_mode,priority:1"`
	Mode      ProctorMode          `json:"mode" gorm:"not null;size:20;index:idx_session_attempt_mode,priority:2"`
	Status    ProctorSessionStatus `json:"status" gorm:"not null;default:Active;index"`

	TotalEvents     int     `json:"total_events" gorm:"not null;default:0"`
	TotalViolations int     `json:"total_violations" gorm:"not null;default:0"`
	RiskScore       float64 `json:"risk_score" gorm:"not null;default:0"`

	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`
	StartedAt       time.Time  `json:"started_at" gorm:"not null"`
	EndedAt         *time.Time `json:"ended_at"`

	AuditFields
	SoftDelete

	// Relations (cascade on session deletion only)
	Events    []ProctorEvent        `json:"events,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Evidence  []ProctorEvidence     `json:"evidence,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Snapshots []ProctorRiskSnapshot `json:"snapshots,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Decision  *ProctorDecision      `json:"decision,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (ProctorSession) TableName() string {
	return "proctor_sessions"
}

func (s *ProctorSession) IsClosed() bool {
	return s.Status != SessionActive
}

// ProctorEvent is an immutable behavioral fact, append-only and ordered by
// occurrence time per session.
type ProctorEvent struct {
	ID         uint             `json:"id" gorm:"primaryKey"`
	SessionID  uint             `json:"session_id" gorm:"not null;index"`
	EventType  ProctorEventType `json:"event_type" gorm:"not null;size:50;index"`
	Severity   int              `json:"severity" gorm:"not null;default:1"` // 1-5 (low to critical)
	OccurredAt time.Time        `json:"occurred_at" gorm:"not null;index"`

	Metadata    datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	IsViolation bool           `json:"is_violation" gorm:"not null;default:false"`

	CreatedBy string    `json:"created_by" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProctorEvent) TableName() string {
	return "proctor_events"
}

// ProctorEvidence points at captured material in external blob storage. The
// core stores references only, never the bytes.
type ProctorEvidence struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	SessionID  uint   `json:"session_id" gorm:"not null;index"`
	Kind       string `json:"kind" gorm:"not null;size:30"` // screenshot, video, audio
	StorageRef string `json:"storage_ref" gorm:"not null;size:500"`
	Caption    string `json:"caption" gorm:"size:255"`

	AuditFields
	SoftDelete
}

func (ProctorEvidence) TableName() string {
	return "proctor_evidence"
}

// ProctorRiskRule is a declarative scoring row. Multiple active rules may
// match one event type; every match fires and their points sum. Priority is a
// reporting tie-break only. Rules are versioned: once a snapshot references a
// rule row, that row is immutable and changes create a new version.
type ProctorRiskRule struct {
	ID         uint             `json:"id" gorm:"primaryKey"`
	EventType  ProctorEventType `json:"event_type" gorm:"not null;size:50;index"`
	RiskPoints float64          `json:"risk_points" gorm:"not null"`
	Priority   int              `json:"priority" gorm:"not null;default:0"`
	IsActive   bool             `json:"is_active" gorm:"not null;default:true;index"`
	Version    int              `json:"version" gorm:"not null;default:1"`
	RuleConfig datatypes.JSON   `json:"rule_config" gorm:"type:jsonb"`

	AuditFields
	SoftDelete
}

func (ProctorRiskRule) TableName() string {
	return "proctor_risk_rules"
}

// ProctorRiskSnapshot is a point-in-time rollup of a session's score.
// Immutable once written; the latest snapshot is authoritative.
type ProctorRiskSnapshot struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	SessionID uint `json:"session_id" gorm:"not null;index"`

	RiskScore      float64        `json:"risk_score" gorm:"not null"`
	EventBreakdown datatypes.JSON `json:"event_breakdown" gorm:"type:jsonb"` // eventType -> points
	TriggeredRules datatypes.JSON `json:"triggered_rules" gorm:"type:jsonb"` // rule IDs that fired

	CalculatedAt time.Time `json:"calculated_at" gorm:"not null"`
	CalculatedBy string    `json:"calculated_by" gorm:"size:255"`
}

func (ProctorRiskSnapshot) TableName() string {
	return "proctor_risk_snapshots"
}

type ProctorDecisionStatus string

const (
	DecisionPending     ProctorDecisionStatus = "Pending"
	DecisionCleared     ProctorDecisionStatus = "Cleared"
	DecisionSuspicious  ProctorDecisionStatus = "Suspicious"
	DecisionInvalidated ProctorDecisionStatus = "Invalidated"
	DecisionEscalated   ProctorDecisionStatus = "Escalated"
)

// ProctorDecision is the verdict for a session, 1:1 with ProctorSession.
// IsFinalized freezes further automatic mutation.
type ProctorDecision struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	SessionID uint `json:"session_id" gorm:"not null;uniqueIndex"`

	Status      ProctorDecisionStatus `json:"status" gorm:"not null;default:Pending"`
	DecidedBy   *string               `json:"decided_by" gorm:"size:255"`
	DecidedAt   *time.Time            `json:"decided_at"`
	IsFinalized bool                  `json:"is_finalized" gorm:"not null;default:false"`

	AuditFields
}

func (ProctorDecision) TableName() string {
	return "proctor_decisions"
}
