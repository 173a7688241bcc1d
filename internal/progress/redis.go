package progress

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"takeoff-backend/internal/shared/telemetry"
)

// DefaultChannel is the pub/sub channel carrying project IDs.
const DefaultChannel = "takeoff:project-updates"

// RedisRelay publishes project IDs on a Redis channel so every API process
// can refresh its own subscribers.
type RedisRelay struct {
	Client  *redis.Client
	Channel string
}

// NewRedisRelay connects to the Redis server at url.
func NewRedisRelay(url string) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisRelay{Client: redis.NewClient(opts), Channel: DefaultChannel}, nil
}

func (r *RedisRelay) channel() string {
	if r.Channel != "" {
		return r.Channel
	}
	return DefaultChannel
}

// Publish sends the project ID to the channel.
func (r *RedisRelay) Publish(ctx context.Context, projectID string) error {
	if err := r.Client.Publish(ctx, r.channel(), projectID).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to the channel and calls onUpdate for every project ID
// received until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, onUpdate func(ctx context.Context, projectID string)) error {
	sub := r.Client.Subscribe(ctx, r.channel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	telemetry.Info("progress.relay_subscribed", map[string]any{"channel": r.channel()})

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			onUpdate(ctx, msg.Payload)
		}
	}
}

// Close releases the client.
func (r *RedisRelay) Close() error {
	return r.Client.Close()
}
