package audit

import (
	"context"
	"log/slog"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/events"
)

// Sink forwards audit records to the integrity event stream. Fire-and-forget:
// delivery failures are logged and never surface to the caller.
type Sink struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewSink(publisher events.EventPublisher, logger *slog.Logger) *Sink {
	return &Sink{
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Sink) Record(ctx context.Context, action, entityName string, entityID uint, actorID string, metadata map[string]interface{}, outcome string) {
	event := events.NewIntegrityEvent(events.EventType(action), entityName, entityID, actorID, outcome, metadata)
	if err := s.publisher.PublishIntegrityEvent(ctx, event); err != nil {
		s.logger.Error("audit record dropped",
			"action", action,
			"entity_name", entityName,
			"entity_id", entityID,
			"error", err)
	}
}
