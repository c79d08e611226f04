package events

import (
	"context"
	"fmt"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// NewLoggerSubscriber creates an event handler that forwards every event to
// the dashboard log
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		// Pull common fields out of the payload when present
		var subjectID, runID, outcome string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["subject_id"].(string); ok {
				subjectID = id
			}
			if id, ok := payload["run_id"].(string); ok {
				runID = id
			}
			if o, ok := payload["outcome"].(string); ok {
				outcome = o
			}
		}

		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if subjectID != "" {
			logEvent = logEvent.Str("subject_id", subjectID)
		}
		if runID != "" {
			logEvent = logEvent.Str("run_id", runID)
		}
		if outcome != "" {
			logEvent = logEvent.Str("outcome", outcome)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the forwarder to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventWarmingCompleted,
		interfaces.EventHealthChanged,
		interfaces.EventMaintenanceCompleted,
		interfaces.EventQueueCleared,
		interfaces.EventRecordUpdated,
		interfaces.EventRecordConflict,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
