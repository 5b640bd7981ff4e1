package broker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/phidinhthang/tiny-chat/metrics"
)

// RedisBroker implements MessageBroker over Redis pub/sub. The client
// is shared with the rest of the process and not closed here.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a Redis-backed broker.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Type() string { return "redis" }

// Publish sends an event on a Redis channel.
func (b *RedisBroker) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.client.Publish(ctx, topic, event).Err(); err != nil {
		return err
	}
	metrics.BrokerEventsPublished.WithLabelValues(b.Type()).Inc()
	return nil
}

// Subscribe consumes events from a Redis channel until ctx is
// cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	// Ensure the subscription is live before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	events := make(chan Event, 100)
	go func() {
		defer close(events)
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("Event decode error: %v", err)
					continue
				}
				metrics.BrokerEventsConsumed.WithLabelValues(b.Type()).Inc()

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Close is a no-op; the Redis client outlives the broker.
func (b *RedisBroker) Close() error { return nil }
