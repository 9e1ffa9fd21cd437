package broadcast

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// WireEvent is the envelope pushed to channel subscribers.
type WireEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EventNameMessageSent labels committed-message events on the live channel.
const EventNameMessageSent = "message.sent"

// Publisher pushes a serialized event onto a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Broker is the Redis pub/sub transport behind the live channel.
type Broker struct {
	client *redis.Client
}

// NewBroker wraps a Redis client.
func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

// Publish pushes payload to every subscriber of channel.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription on the given channel. The caller owns the
// returned PubSub and must Close it when the conversation view goes away;
// stale subscriptions double-deliver into newly opened ones.
func (b *Broker) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return b.client.Subscribe(ctx, channel)
}
