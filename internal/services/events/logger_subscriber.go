package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		var jobID, detectedType, reason string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["job_id"].(string); ok {
				jobID = id
			}
			if dt, ok := payload["detected_type"].(string); ok {
				detectedType = dt
			}
			if r, ok := payload["reason"].(string); ok {
				reason = r
			}
		}

		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if jobID != "" {
			logEvent = logEvent.Str("job_id", jobID)
		}
		if detectedType != "" {
			logEvent = logEvent.Str("detected_type", detectedType)
		}
		if reason != "" {
			logEvent = logEvent.Str("reason", reason)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventMessageAnalyzed,
		interfaces.EventAlertDispatched,
		interfaces.EventJobDeadLettered,
		interfaces.EventJobFailed,
		interfaces.EventHealthDegraded,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return err
		}
	}

	return nil
}
