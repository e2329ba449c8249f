package bus

import (
	"context"
	"fmt"
	"sync"
)

type memorySub struct {
	channels map[Channel]bool
	out      chan Message
	once     sync.Once
}

func (s *memorySub) close() {
	s.once.Do(func() { close(s.out) })
}

// MemoryBus is an in-process Bus used when Redis is not configured and in tests.
// A subscriber whose stream is full misses the delivery.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	closed bool
	done   chan struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[*memorySub]struct{}),
		done: make(chan struct{}),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, channel Channel, payload []byte) error {
	if !channel.Valid() {
		return fmt.Errorf("publish: unknown channel %q", channel)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
	for s := range b.subs {
		if !s.channels[channel] {
			continue
		}
		select {
		case s.out <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channels ...Channel) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("subscribe: no channels")
	}
	s := &memorySub{
		channels: make(map[Channel]bool, len(channels)),
		out:      make(chan Message, streamBuffer),
	}
	for _, c := range channels {
		if !c.Valid() {
			return nil, fmt.Errorf("subscribe: unknown channel %q", c)
		}
		s.channels[c] = true
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		if _, ok := b.subs[s]; ok {
			delete(b.subs, s)
			s.close()
		}
		b.mu.Unlock()
	}()

	return s.out, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	for s := range b.subs {
		delete(b.subs, s)
		s.close()
	}
	return nil
}
