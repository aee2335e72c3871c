// Package eventbus publishes JSON notifications over Redis Pub/Sub.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel carries stock ledger notifications.
const DefaultChannel = "stockledger.events"

// RedisBus fans out JSON messages on a single channel.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// New constructs a bus; an empty channel falls back to DefaultChannel.
func New(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel}
}

// Channel reports the channel the bus publishes on.
func (b *RedisBus) Channel() string {
	return b.channel
}

// PublishJSON encodes v and publishes it.
func (b *RedisBus) PublishJSON(ctx context.Context, v any) error {
	if b == nil || b.client == nil {
		return errors.New("eventbus: not initialised")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("eventbus: encode: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// Subscribe delivers raw payloads to fn until ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(context.Context, []byte)) error {
	if b == nil || b.client == nil {
		return errors.New("eventbus: not initialised")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = pubsub.Close() }()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("eventbus: subscribe: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(ctx, []byte(msg.Payload))
		}
	}
}
