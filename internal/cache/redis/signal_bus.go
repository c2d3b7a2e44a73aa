package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tradeforge/robotengine/internal/domain"
)

// streamMaxLen caps the per-robot event stream, enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.EventBus. Every event is published to a
// per-robot Pub/Sub channel for live subscribers and appended to a capped
// Redis stream for catch-up readers.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

func channelName(robotID string) string { return "robot:" + robotID + ":signals" }
func streamName(robotID string) string  { return "robot:" + robotID + ":signal-stream" }

// PublishEvents publishes each event as a JSON payload.
func (sb *SignalBus) PublishEvents(ctx context.Context, robotID string, events []domain.SignalEvent) error {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("redis: marshal event %s: %w", event.ID, err)
		}
		if err := sb.rdb.Publish(ctx, channelName(robotID), payload).Err(); err != nil {
			return fmt.Errorf("redis: publish event %s: %w", event.ID, err)
		}
		args := &redis.XAddArgs{
			Stream: streamName(robotID),
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"payload": payload},
		}
		if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("redis: stream append event %s: %w", event.ID, err)
		}
	}
	return nil
}

// Subscribe returns a channel of raw event payloads for a robot. The
// subscription closes when the context is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, robotID string) (<-chan []byte, error) {
	pubsub := sb.rdb.Subscribe(ctx, channelName(robotID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", robotID, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ domain.EventBus = (*SignalBus)(nil)
