package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"insightline/internal/engine"
)

// DefaultRedisChannel is the pub/sub channel events are published to.
const DefaultRedisChannel = "insightline.events"

// Redis publishes events as JSON on a Redis pub/sub channel.
type Redis struct {
	client  redis.UniversalClient
	channel string
}

var _ engine.EventSink = (*Redis)(nil)

type RedisOption func(*Redis)

// WithChannel overrides DefaultRedisChannel.
func WithChannel(channel string) RedisOption {
	return func(r *Redis) {
		if channel != "" {
			r.channel = channel
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, channel: DefaultRedisChannel}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Channel returns the configured channel.
func (r *Redis) Channel() string { return r.channel }

func (r *Redis) Publish(ctx context.Context, evt engine.DomainEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", evt.Name, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error { return r.client.Close() }
