package events

import (
	"context"
	"testing"
)

func TestDisabledPublisherIsSafe(t *testing.T) {
	p := NewPublisher("", "diagnosis:model_events")
	// Must be a no-op, not a panic.
	p.Publish(context.Background(), "training.started", map[string]any{"epochs": 5})
	p.Close()
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	p.Publish(context.Background(), "training.completed", nil)
	p.Close()
}
