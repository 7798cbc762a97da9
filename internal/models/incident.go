package models

import (
	"time"

	"gorm.io/datatypes"
)

type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "Open"
	IncidentInReview IncidentStatus = "InReview"
	IncidentResolved IncidentStatus = "Resolved"
	IncidentClosed   IncidentStatus = "Closed"
)

type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "Low"
	SeverityMedium   IncidentSeverity = "Medium"
	SeverityHigh     IncidentSeverity = "High"
	SeverityCritical IncidentSeverity = "Critical"
)

// SeverityForRiskScore maps a session risk score into an incident severity
// bucket: <=20 Low, <=50 Medium, <=75 High, else Critical.
func SeverityForRiskScore(score float64) IncidentSeverity {
	switch {
	case score <= 20:
		return SeverityLow
	case score <= 50:
		return SeverityMedium
	case score <= 75:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

type IncidentSource string

const (
	SourceProctorAuto  IncidentSource = "ProctorAuto"
	SourceManualReport IncidentSource = "ManualReport"
	SourceSystemRule   IncidentSource = "SystemRule"
)

type CaseOutcome string

const (
	OutcomeCleared     CaseOutcome = "Cleared"
	OutcomeSuspicious  CaseOutcome = "Suspicious"
	OutcomeInvalidated CaseOutcome = "Invalidated"
	OutcomeEscalated   CaseOutcome = "Escalated"
)

// IncidentCase is the durable integrity case, independent of the session that
// spawned it.
type IncidentCase struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	CaseNumber string `json:"case_number" gorm:"not null;uniqueIndex;size:20"`

	ExamID      uint   `json:"exam_id" gorm:"not null;index"`
	AttemptID   uint   `json:"attempt_id" gorm:"not null;index"`
	CandidateID string `json:"candidate_id" gorm:"not null;size:255;index"`

	Status   IncidentStatus   `json:"status" gorm:"not null;default:Open;index"`
	Severity IncidentSeverity `json:"severity" gorm:"not null;size:10"`
	Source   IncidentSource   `json:"source" gorm:"not null;size:20"`

	Title   string `json:"title" gorm:"not null;size:200"`
	Summary string `json:"summary" gorm:"type:text"`

	// Point-in-time facts copied from the attempt's proctor session at
	// creation. Never recomputed.
	RiskScoreAtCreate       float64 `json:"risk_score_at_create" gorm:"not null;default:0"`
	TotalViolationsAtCreate int     `json:"total_violations_at_create" gorm:"not null;default:0"`

	AssignedTo *string      `json:"assigned_to" gorm:"size:255;index"`
	Outcome    *CaseOutcome `json:"outcome" gorm:"size:20"` // nil until decided
	ResolvedBy *string      `json:"resolved_by" gorm:"size:255"`
	ResolvedAt *time.Time   `json:"resolved_at"`

	AuditFields
	SoftDelete

	// Relations
	Timeline      []IncidentTimelineEntry `json:"timeline,omitempty" gorm:"foreignKey:CaseID"`
	Decisions     []IncidentDecision      `json:"decisions,omitempty" gorm:"foreignKey:CaseID"`
	EvidenceLinks []IncidentEvidenceLink  `json:"evidence_links,omitempty" gorm:"foreignKey:CaseID"`
	Comments      []IncidentComment       `json:"comments,omitempty" gorm:"foreignKey:CaseID"`
	Appeals       []AppealRequest         `json:"appeals,omitempty" gorm:"foreignKey:IncidentCaseID"`
}

func (IncidentCase) TableName() string {
	return "incident_cases"
}

type TimelineEntryType string

const (
	TimelineCreated          TimelineEntryType = "Created"
	TimelineAssigned         TimelineEntryType = "Assigned"
	TimelineStatusChanged    TimelineEntryType = "StatusChanged"
	TimelineEvidenceLinked   TimelineEntryType = "EvidenceLinked"
	TimelineDecisionRecorded TimelineEntryType = "DecisionRecorded"
	TimelineReopened         TimelineEntryType = "Reopened"
	TimelineAppealSubmitted  TimelineEntryType = "AppealSubmitted"
	TimelineAppealReviewed   TimelineEntryType = "AppealReviewed"
	TimelineCommentAdded     TimelineEntryType = "CommentAdded"
)

// IncidentTimelineEntry is the append-only audit trail of a case. Every status
// change appends exactly one entry of matching type.
type IncidentTimelineEntry struct {
	ID     uint              `json:"id" gorm:"primaryKey"`
	CaseID uint              `json:"case_id" gorm:"not null;index"`
	Type   TimelineEntryType `json:"type" gorm:"not null;size:30"`

	ActorID string         `json:"actor_id" gorm:"size:255"`
	Note    string         `json:"note" gorm:"type:text"`
	Detail  datatypes.JSON `json:"detail" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (IncidentTimelineEntry) TableName() string {
	return "incident_timeline_entries"
}

// IncidentDecision is one row of the append-only decision history. Rows are
// never overwritten; each RecordDecision call creates a new one.
type IncidentDecision struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	CaseID uint `json:"case_id" gorm:"not null;index"`

	Outcome    CaseOutcome `json:"outcome" gorm:"not null;size:20"`
	Reason     string      `json:"reason" gorm:"type:text"`
	ClosedCase bool        `json:"closed_case" gorm:"not null;default:false"`

	DecidedBy string    `json:"decided_by" gorm:"not null;size:255"`
	DecidedAt time.Time `json:"decided_at" gorm:"not null"`
}

func (IncidentDecision) TableName() string {
	return "incident_decisions"
}

// IncidentEvidenceLink is a pure association to proctor evidence or events.
// Evidence is never moved or duplicated.
type IncidentEvidenceLink struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	CaseID uint `json:"case_id" gorm:"not null;index"`

	EvidenceRef string `json:"evidence_ref" gorm:"not null;size:500"`
	LinkedBy    string `json:"linked_by" gorm:"not null;size:255"`

	CreatedAt time.Time `json:"created_at"`
}

func (IncidentEvidenceLink) TableName() string {
	return "incident_evidence_links"
}

// IncidentComment is side-channel communication attached to a case. Edits
// preserve the original authorship timestamp and flag is_edited.
type IncidentComment struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	CaseID uint `json:"case_id" gorm:"not null;index"`

	AuthorID string `json:"author_id" gorm:"not null;size:255"`
	Body     string `json:"body" gorm:"not null;type:text"`

	IsEdited bool       `json:"is_edited" gorm:"not null;default:false"`
	EditedAt *time.Time `json:"edited_at"`

	CreatedAt time.Time `json:"created_at"`
	SoftDelete
}

func (IncidentComment) TableName() string {
	return "incident_comments"
}
