package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// EventType represents different types of integrity events
type EventType string

const (
	// Attempt timer events
	EventAttemptStarted    EventType = "attempt.started"
	EventAttemptSubmitted  EventType = "attempt.submitted"
	EventAttemptPaused     EventType = "attempt.paused"
	EventAttemptResumed    EventType = "attempt.resumed"
	EventAttemptForceEnded EventType = "attempt.force_ended"
	EventAttemptExpired    EventType = "attempt.expired"
	EventAttemptTimeAdded  EventType = "attempt.time_added"

	// Proctoring events
	EventSessionOpened    EventType = "proctor.session_opened"
	EventSessionClosed    EventType = "proctor.session_closed"
	EventDecisionRecorded EventType = "proctor.decision_recorded"

	// Incident events
	EventIncidentCreated       EventType = "incident.created"
	EventIncidentAssigned      EventType = "incident.assigned"
	EventIncidentStatusChanged EventType = "incident.status_changed"
	EventIncidentDecided       EventType = "incident.decision_recorded"
	EventIncidentReopened      EventType = "incident.reopened"

	// Appeal events
	EventAppealSubmitted     EventType = "appeal.submitted"
	EventAppealReviewStarted EventType = "appeal.review_started"
	EventAppealReviewed      EventType = "appeal.reviewed"
)

// IntegrityEvent is the base event structure published to the audit stream.
type IntegrityEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`

	EntityName string                 `json:"entity_name"`
	EntityID   uint                   `json:"entity_id"`
	ActorID    string                 `json:"actor_id"`
	Outcome    string                 `json:"outcome"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewIntegrityEvent builds an audit event with a fresh UUID and timestamp.
func NewIntegrityEvent(eventType EventType, entityName string, entityID uint, actorID, outcome string, metadata map[string]interface{}) *IntegrityEvent {
	return &IntegrityEvent{
		ID:         watermill.NewUUID(),
		Type:       eventType,
		Timestamp:  time.Now(),
		Source:     "exam-integrity-service",
		Version:    "1.0",
		EntityName: entityName,
		EntityID:   entityID,
		ActorID:    actorID,
		Outcome:    outcome,
		Metadata:   metadata,
	}
}
