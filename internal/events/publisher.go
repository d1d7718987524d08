// Package events pushes training lifecycle notifications onto a Redis list
// queue for downstream consumers (the dashboard relay). Publishing is best
// effort: a missing or unreachable Redis never fails the operation that
// emitted the event.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher enqueues JSON events. A nil Publisher, or one built without a
// Redis address, silently drops everything.
type Publisher struct {
	client *redis.Client
	queue  string
}

// NewPublisher connects to Redis at addr and targets the given list queue.
// An empty addr disables publishing.
func NewPublisher(addr, queue string) *Publisher {
	if addr == "" {
		return &Publisher{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("warning: redis event queue ping failed: %v", err)
	} else {
		log.Printf("redis event queue ready (%s -> %s)", addr, queue)
	}
	return &Publisher{client: client, queue: queue}
}

// Publish enqueues one event with the given name and extra fields.
func (p *Publisher) Publish(ctx context.Context, event string, fields map[string]any) {
	if p == nil || p.client == nil {
		return
	}
	payload := map[string]any{
		"id":    uuid.NewString(),
		"event": event,
		"ts":    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	if err := p.client.RPush(ctx, p.queue, string(data)).Err(); err != nil {
		log.Printf("event enqueue error: %v", err)
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	_ = p.client.Close()
}
