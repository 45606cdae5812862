package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

type redisPubSub interface {
	Channel(...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) redisPubSub
	Close() error
}

// RedisBus publishes envelopes with Redis PUBLISH.
type RedisBus struct {
	client redisClient
}

// NewRedisBus creates a client for the redis:// URL address, or a local
// server when empty. The connection is established lazily.
func NewRedisBus(address string) (*RedisBus, error) {
	if address == "" {
		address = "redis://127.0.0.1:6379"
	}
	options, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisBus{client: &redisClientAdapter{Client: redis.NewClient(options)}}, nil
}

// Publish sends env on the subject channel.
func (b *RedisBus) Publish(ctx context.Context, subject string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, subject, raw).Err()
}

// Subscribe delivers envelopes received on subject until ctx ends or the
// returned function is called. Undecodable messages are skipped.
func (b *RedisBus) Subscribe(ctx context.Context, subject string) (<-chan Envelope, func(), error) {
	if b == nil || b.client == nil {
		return nil, nil, fmt.Errorf("redis bus is nil")
	}
	pubSub := b.client.Subscribe(ctx, subject)
	if pubSub == nil {
		return nil, nil, fmt.Errorf("subscribe failed")
	}
	rawCh := pubSub.Channel()
	out := make(chan Envelope, 32)
	once := sync.Once{}
	stop := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			_ = pubSub.Close()
			close(stop)
		})
	}
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case msg, ok := <-rawCh:
				if !ok {
					return
				}
				env, err := ParseEnvelope([]byte(msg.Payload))
				if err != nil {
					continue
				}
				select {
				case out <- env:
				default:
				}
			}
		}
	}()
	return out, unsubscribe, nil
}

// Close closes the client.
func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

type redisClientAdapter struct {
	*redis.Client
}

func (r *redisClientAdapter) Subscribe(ctx context.Context, channels ...string) redisPubSub {
	return r.Client.Subscribe(ctx, channels...)
}
