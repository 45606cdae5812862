package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/internal/orchestrator"
)

const (
	defaultForwardBuffer  = 256
	defaultPublishTimeout = 5 * time.Second
)

// Forwarder relays lifecycle events to a Bus. Handle never blocks the
// emitter: events that do not fit in the buffer are dropped and counted.
// stepOutput events are not forwarded.
type Forwarder struct {
	bus     Bus
	subject string
	logger  *logging.Logger
	timeout time.Duration

	queue chan Envelope
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithBuffer sets the number of envelopes held while the bus is slow.
func WithBuffer(n int) ForwarderOption {
	return func(f *Forwarder) {
		if n > 0 {
			f.queue = make(chan Envelope, n)
		}
	}
}

// WithPublishTimeout bounds each Publish call.
func WithPublishTimeout(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewForwarder starts a Forwarder publishing to subject on bus.
func NewForwarder(bus Bus, subject string, logger *logging.Logger, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		bus:     bus,
		subject: subject,
		logger:  logger.With("component", "bus"),
		timeout: defaultPublishTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.queue == nil {
		f.queue = make(chan Envelope, defaultForwardBuffer)
	}
	go f.loop()
	return f
}

// Handle is an orchestrator.Subscriber.
func (f *Forwarder) Handle(ev orchestrator.Event) {
	if ev.Type == orchestrator.EventStepOutput {
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- FromEvent(ev):
	default:
		f.dropped.Add(1)
	}
}

func (f *Forwarder) loop() {
	defer close(f.done)
	for env := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := f.bus.Publish(ctx, f.subject, env)
		cancel()
		if err != nil {
			f.failed.Add(1)
			f.logger.WithTask(env.TaskID).Warn("event publish failed", "event", env.Type, "error", err)
			continue
		}
		f.published.Add(1)
	}
}

// Close stops accepting events and waits until queued envelopes have been
// published. It does not close the underlying Bus.
func (f *Forwarder) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.queue)
		f.mu.Unlock()
	})
	<-f.done
}

// Published returns the number of envelopes delivered to the bus.
func (f *Forwarder) Published() int64 { return f.published.Load() }

// Dropped returns the number of events discarded because the buffer was full.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }

// Failed returns the number of envelopes the bus rejected.
func (f *Forwarder) Failed() int64 { return f.failed.Load() }
