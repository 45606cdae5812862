package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
)

type natsSubscription interface {
	Unsubscribe() error
}

type natsConnection interface {
	Publish(string, []byte) error
	Subscribe(string, nats.MsgHandler) (natsSubscription, error)
	Close() error
}

// NATSBus publishes envelopes as NATS messages.
type NATSBus struct {
	conn natsConnection
}

// NewNATSBus connects to address, or nats.DefaultURL when empty.
func NewNATSBus(address string) (*NATSBus, error) {
	if address == "" {
		address = nats.DefaultURL
	}
	conn, err := nats.Connect(address, nats.Name("taskpilot"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{conn: &natsConnectionAdapter{conn}}, nil
}

// Publish sends env on subject.
func (b *NATSBus) Publish(ctx context.Context, subject string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.conn.Publish(subject, raw)
}

// Subscribe delivers envelopes received on subject until ctx ends or the
// returned function is called. Undecodable messages are skipped.
func (b *NATSBus) Subscribe(ctx context.Context, subject string) (<-chan Envelope, func(), error) {
	if b == nil || b.conn == nil {
		return nil, nil, fmt.Errorf("nats bus is nil")
	}

	out := make(chan Envelope, 32)
	var (
		stopped atomic.Bool
		mu      sync.RWMutex
		once    sync.Once
		sub     natsSubscription
	)

	unsubscribe := func() {
		once.Do(func() {
			stopped.Store(true)
			if sub != nil {
				_ = sub.Unsubscribe()
			}
			mu.Lock()
			defer mu.Unlock()
			close(out)
		})
	}

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		if stopped.Load() {
			return
		}
		env, err := ParseEnvelope(msg.Data)
		if err != nil {
			return
		}
		mu.RLock()
		defer mu.RUnlock()
		if stopped.Load() {
			return
		}
		select {
		case out <- env:
		default:
		}
	})
	if err != nil {
		return nil, nil, err
	}
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return out, unsubscribe, nil
}

// Close closes the connection.
func (b *NATSBus) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

type natsConnectionAdapter struct {
	*nats.Conn
}

func (a *natsConnectionAdapter) Subscribe(subject string, handler nats.MsgHandler) (natsSubscription, error) {
	sub, err := a.Conn.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (a *natsConnectionAdapter) Close() error {
	if err := a.Conn.Drain(); err != nil {
		a.Conn.Close()
	}
	return nil
}
