package services

import "context"

// Collaborator boundaries consumed by the core. Implementations live outside
// this package (Kafka audit sink, Redis notification channel, casdoor
// directory); tests inject in-memory fakes.

// AuditSink records state-affecting actions. Fire-and-forget: implementations
// swallow delivery failures and must never block or fail the caller.
type AuditSink interface {
	Record(ctx context.Context, action, entityName string, entityID uint, actorID string, metadata map[string]interface{}, outcome string)
}

// NotificationChannel pushes to a candidate's live connection. Best effort,
// no delivery guarantee; errors are logged by the caller and never propagate.
type NotificationChannel interface {
	PushToAttempt(ctx context.Context, attemptID uint, eventName string, payload interface{}) error
}

// EvidenceInfo is the render-time view of stored evidence.
type EvidenceInfo struct {
	PreviewURL string            `json:"preview_url"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EvidenceStore resolves evidence references for display. Read-only; the core
// never mutates stored evidence.
type EvidenceStore interface {
	Resolve(ctx context.Context, evidenceRef string) (*EvidenceInfo, error)
}

// CandidateDirectory resolves candidate display names for case and appeal
// views.
type CandidateDirectory interface {
	Resolve(ctx context.Context, candidateID string) (string, error)
}
