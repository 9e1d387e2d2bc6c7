package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/plotforge/plotforge-api/internal/events"
)

// channelPrefix namespaces job topics in the shared redis keyspace.
const channelPrefix = "plotforge:events:"

// RedisBroadcaster implements the Broadcaster contract over redis pub/sub,
// letting subscribers attach to a different process than the scheduler.
type RedisBroadcaster struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisBroadcaster wraps an existing redis client. The client is pinged
// to catch misconfiguration at startup rather than on first publish.
func NewRedisBroadcaster(ctx context.Context, rdb *redis.Client, logger *slog.Logger) (*RedisBroadcaster, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBroadcaster{
		rdb:    rdb,
		logger: logger.With("component", "redis_broadcaster"),
	}, nil
}

// Publish marshals the envelope and publishes it on the topic's channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, topic string, event events.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, channelPrefix+topic, raw).Err()
}

// Subscribe attaches to the topic's redis channel and decodes messages
// into the returned stream. Malformed payloads are logged and skipped.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, topic string) (<-chan events.Event, func(), error) {
	sub := b.rdb.Subscribe(ctx, channelPrefix+topic)

	// Confirm the subscription actually started.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan events.Event, subscriberBuffer)
	cancel := func() { _ = sub.Close() }

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var event events.Event
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.logger.Warn("bad broadcast payload",
						"topic", topic, "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					_ = sub.Close()
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Ensure RedisBroadcaster satisfies the full contract.
var _ Broadcaster = (*RedisBroadcaster)(nil)
