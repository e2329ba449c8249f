package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-voicechat/internal/logger"
)

// RedisBus implements Bus on Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	log    zerolog.Logger

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

// NewRedisBus wraps an existing client. The caller owns the client.
func NewRedisBus(client *redis.Client, log zerolog.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		log:    log.With().Str(logger.FieldComponent, "bus").Logger(),
		subs:   make(map[*redis.PubSub]struct{}),
	}
}

func (b *RedisBus) Publish(ctx context.Context, channel Channel, payload []byte) error {
	if !channel.Valid() {
		return fmt.Errorf("publish: unknown channel %q", channel)
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := b.client.Publish(ctx, string(channel), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channels ...Channel) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("subscribe: no channels")
	}
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		if !c.Valid() {
			return nil, fmt.Errorf("subscribe: unknown channel %q", c)
		}
		names = append(names, string(c))
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	pubsub := b.client.Subscribe(ctx, names...)
	b.subs[pubsub] = struct{}{}
	b.mu.Unlock()

	// Wait for the subscription confirmation so publishes made after
	// Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		b.release(pubsub)
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Message, streamBuffer)
	go b.forward(ctx, pubsub, out)
	return out, nil
}

// forward copies Redis deliveries into the typed stream, keeping publish order.
func (b *RedisBus) forward(ctx context.Context, pubsub *redis.PubSub, out chan<- Message) {
	defer close(out)
	defer b.release(pubsub)

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
			case out <- Message{Channel: Channel(msg.Channel), Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *RedisBus) release(pubsub *redis.PubSub) {
	b.mu.Lock()
	_, ok := b.subs[pubsub]
	delete(b.subs, pubsub)
	b.mu.Unlock()
	if ok {
		if err := pubsub.Close(); err != nil {
			b.log.Debug().Err(err).Msg("closing subscription")
		}
	}
}

// Close ends every open subscription. The Redis client stays open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[*redis.PubSub]struct{})
	b.mu.Unlock()

	for pubsub := range subs {
		_ = pubsub.Close()
	}
	return nil
}
