package models

import (
	"time"
)

type AttemptStatus string

const (
	AttemptStarted        AttemptStatus = "Started"
	AttemptInProgress     AttemptStatus = "InProgress"
	AttemptPaused         AttemptStatus = "Paused"
	AttemptResumed        AttemptStatus = "Resumed"
	AttemptSubmitted      AttemptStatus = "Submitted"
	AttemptExpired        AttemptStatus = "Expired"
	AttemptCancelled      AttemptStatus = "Cancelled"
	AttemptForceSubmitted AttemptStatus = "ForceSubmitted"
	AttemptTerminated     AttemptStatus = "Terminated"
)

// IsTerminal reports whether the status is absorbing. Terminal attempts have
// zero remaining time regardless of expires_at.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptSubmitted, AttemptExpired, AttemptCancelled, AttemptForceSubmitted, AttemptTerminated:
		return true
	}
	return false
}

// IsRunning reports whether the candidate is actively working. Resumed is
// included everywhere InProgress is referenced.
func (s AttemptStatus) IsRunning() bool {
	return s == AttemptInProgress || s == AttemptResumed
}

// Attempt is one candidate's time-boxed exam-taking session.
type Attempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	CandidateID   string        `json:"candidate_id" gorm:"not null;size:255;uniqueIndex:idx_candidate_exam_attempt,priority:1"`
	ExamID        uint          `json:"exam_id" gorm:"not null;uniqueIndex:idx_candidate_exam_attempt,priority:2;index"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;default:1;uniqueIndex:idx_candidate_exam_attempt,priority:3"`
	Status        AttemptStatus `json:"status" gorm:"not null;default:Started;index"`

	// Timer state. ExpiresAt is set while the attempt is non-terminal and
	// frozen once a terminal status is reached.
	StartedAt        time.Time  `json:"started_at" gorm:"not null"`
	ExpiresAt        *time.Time `json:"expires_at"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	ScheduleEndAt    *time.Time `json:"schedule_end_at"` // exam hard end, snapshotted at start
	ExtraTimeSeconds int        `json:"extra_time_seconds" gorm:"not null;default:0"`
	ResumeCount      int        `json:"resume_count" gorm:"not null;default:0"`
	LastActivityAt   *time.Time `json:"last_activity_at"`

	// Admin intervention
	ForceSubmittedBy *string    `json:"force_submitted_by" gorm:"size:255"`
	ForceSubmittedAt *time.Time `json:"force_submitted_at"`

	// Client context
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	DeviceInfo string `json:"device_info" gorm:"type:text"`

	AuditFields
	SoftDelete

	// Relations
	ProctorSessions []ProctorSession `json:"proctor_sessions,omitempty" gorm:"foreignKey:AttemptID"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// RemainingSeconds is the single remaining-time implementation for every
// candidate- or admin-visible countdown. Terminal attempts always report 0.
func (a *Attempt) RemainingSeconds(now time.Time) int64 {
	if a.Status.IsTerminal() || a.ExpiresAt == nil {
		return 0
	}
	remaining := int64(a.ExpiresAt.Sub(now) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Derived business-rule flags. Recomputed on every read, never stored.

func (a *Attempt) CanForceEnd() bool {
	return a.Status == AttemptPaused || a.Status.IsRunning()
}

func (a *Attempt) CanResume(now time.Time) bool {
	if a.Status != AttemptPaused || a.RemainingSeconds(now) <= 0 {
		return false
	}
	return a.ScheduleEndAt == nil || now.Before(*a.ScheduleEndAt)
}

func (a *Attempt) CanAddTime() bool {
	return a.Status.IsRunning()
}
