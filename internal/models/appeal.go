package models

import "time"

type AppealStatus string

const (
	AppealSubmitted AppealStatus = "Submitted"
	AppealInReview  AppealStatus = "InReview"
	AppealApproved  AppealStatus = "Approved"
	AppealRejected  AppealStatus = "Rejected"
)

// IsOpen reports whether the appeal still blocks new appeals on its case.
func (s AppealStatus) IsOpen() bool {
	return s == AppealSubmitted || s == AppealInReview
}

// AppealRequest is a candidate dispute against an IncidentCase's outcome.
// At most one open appeal may exist per case at a time.
type AppealRequest struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	AppealNumber string `json:"appeal_number" gorm:"not null;uniqueIndex;size:20"`

	IncidentCaseID uint   `json:"incident_case_id" gorm:"not null;index"`
	CandidateID    string `json:"candidate_id" gorm:"not null;size:255;index"`

	Status  AppealStatus `json:"status" gorm:"not null;default:Submitted;index"`
	Message string       `json:"message" gorm:"not null;type:text"`

	// OriginalOutcome is captured at submission time and never changes, even
	// if the case's outcome later does.
	OriginalOutcome *CaseOutcome `json:"original_outcome" gorm:"size:20"`

	ReviewedBy     *string    `json:"reviewed_by" gorm:"size:255"`
	ReviewedAt     *time.Time `json:"reviewed_at"`
	DecisionNoteEn *string    `json:"decision_note_en" gorm:"type:text"`
	DecisionNoteAr *string    `json:"decision_note_ar" gorm:"type:text"`

	AuditFields
	SoftDelete
}

func (AppealRequest) TableName() string {
	return "appeal_requests"
}
