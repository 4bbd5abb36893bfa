package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Event channels published by the engine.
const (
	ChannelOrders = "orders"
	ChannelCycles = "cycles"
	ChannelQuotes = "quotes"
)

// Event is one published message, as delivered to a subscriber.
type Event struct {
	Channel string
	Payload json.RawMessage
}

// EventBus fans engine events out to interested consumers (the WebSocket
// hub, other processes). Publishing is fire-and-forget: a slow or absent
// subscriber never blocks the trading path.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload any) error
	// Subscribe returns a receive channel and a cancel function that must be
	// called to release the subscription.
	Subscribe(ctx context.Context, channels ...string) (<-chan Event, func(), error)
}

// RateLimiter bounds request rates per key over a rolling window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
