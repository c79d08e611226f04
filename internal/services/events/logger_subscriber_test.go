package events

import (
	"context"
	"testing"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// TestNewLoggerSubscriber verifies that the forwarder handles events with and
// without payloads
func TestNewLoggerSubscriber(t *testing.T) {
	logger := arbor.NewLogger()

	subscriber := NewLoggerSubscriber(logger)

	ctx := context.Background()
	event := interfaces.Event{
		Type: interfaces.EventWarmingCompleted,
		Payload: map[string]interface{}{
			"subject_id": "user-123",
			"outcome":    "success",
		},
	}

	if err := subscriber(ctx, event); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	event2 := interfaces.Event{
		Type:    interfaces.EventQueueCleared,
		Payload: nil,
	}

	if err := subscriber(ctx, event2); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// TestSubscribeLoggerToAllEvents verifies the forwarder attaches to every
// known event type
func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()

	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	ctx := context.Background()
	event := interfaces.Event{
		Type: interfaces.EventMaintenanceCompleted,
		Payload: map[string]interface{}{
			"run_id": "run-abc",
		},
	}

	if err := eventService.PublishSync(ctx, event); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}
