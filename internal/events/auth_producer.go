package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type AuthProducer struct {
	client     *redis.Client
	streamName string
}

func NewAuthProducer(client *redis.Client, streamName string) *AuthProducer {
	return &AuthProducer{
		client:     client,
		streamName: streamName,
	}
}

func (p *AuthProducer) Publish(ctx context.Context, event *AuthEvent) error {
	fields := map[string]interface{}{
		"event_type": event.EventType,
		"timestamp":  event.Timestamp,
	}

	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.IP != "" {
		fields["ip"] = event.IP
	}
	if event.UserAgent != "" {
		fields["user_agent"] = event.UserAgent
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamName,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish auth event: %w", err)
	}

	return nil
}
