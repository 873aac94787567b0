package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/daminiR/medspa-sub015/internal/waitlist"
)

// EventChannel is the pub/sub channel the notification and calendar
// collaborators subscribe to.
const EventChannel = "waitlist:events"

// EventPublisher fans waitlist events out over Redis pub/sub. Delivery is
// best-effort; the durable record is the Postgres event log.
type EventPublisher struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) Publish(ctx context.Context, ev waitlist.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	if err := p.client.Publish(ctx, EventChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}
	return nil
}
