package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quantlab/papertrader/internal/domain"
)

// Bus implements domain.EventBus over Redis pub/sub.
type Bus struct {
	client *Client
	logger *slog.Logger
}

func NewBus(client *Client, logger *slog.Logger) *Bus {
	return &Bus{
		client: client,
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Publish serializes payload as JSON and publishes it on the channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: marshal event for %s: %w", channel, err)
	}
	if err := b.client.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe delivers events from the given channels until cancel is called
// or ctx is done.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.rdb.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	out := make(chan domain.Event, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		src := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- domain.Event{Channel: msg.Channel, Payload: json.RawMessage(msg.Payload)}:
				default:
					// Drop rather than stall the pub/sub reader.
					b.logger.Warn("event dropped, subscriber too slow", slog.String("channel", msg.Channel))
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		_ = pubsub.Close()
	}
	return out, cancel, nil
}
