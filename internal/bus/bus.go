// Package bus publishes taskpilot lifecycle events to an external message
// bus (NATS or Redis pub/sub) as JSON envelopes.
package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/taskpilot/internal/config"
)

// Supported bus kinds for events.bus.
const (
	KindNone   = "none"
	KindMemory = "memory"
	KindNATS   = "nats"
	KindRedis  = "redis"
)

// Bus publishes and subscribes to envelopes on a subject.
type Bus interface {
	Publish(ctx context.Context, subject string, env Envelope) error
	Subscribe(ctx context.Context, subject string) (<-chan Envelope, func(), error)
	Close() error
}

// New connects the bus named by cfg.Bus. It returns nil, nil for "none".
func New(cfg config.EventsConfig) (Bus, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Bus)) {
	case "", KindNone:
		return nil, nil
	case KindMemory:
		return NewMemoryBus(), nil
	case KindNATS:
		return NewNATSBus(cfg.Address)
	case KindRedis:
		return NewRedisBus(cfg.Address)
	default:
		return nil, fmt.Errorf("unknown event bus %q (want none, nats or redis)", cfg.Bus)
	}
}

// MemoryBus is an in-process Bus. Slow subscribers miss envelopes.
type MemoryBus struct {
	mu        sync.RWMutex
	channels  map[string][]chan Envelope
	closed    bool
	closeOnce sync.Once
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		channels: make(map[string][]chan Envelope),
	}
}

// Publish delivers env to every current subscriber of subject.
func (b *MemoryBus) Publish(_ context.Context, subject string, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus closed")
	}
	for _, ch := range b.channels[subject] {
		select {
		case ch <- env:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of envelopes published to subject and a
// function that ends the subscription.
func (b *MemoryBus) Subscribe(_ context.Context, subject string) (<-chan Envelope, func(), error) {
	if b == nil {
		return nil, nil, fmt.Errorf("bus is nil")
	}
	ch := make(chan Envelope, 32)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, fmt.Errorf("bus closed")
	}
	b.channels[subject] = append(b.channels[subject], ch)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subscribers := b.channels[subject]
		for i, candidate := range subscribers {
			if candidate == ch {
				b.channels[subject] = append(subscribers[:i], subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsub, nil
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	if b == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for subject, subscribers := range b.channels {
			for _, ch := range subscribers {
				close(ch)
			}
			delete(b.channels, subject)
		}
		b.mu.Unlock()
	})
	return nil
}
