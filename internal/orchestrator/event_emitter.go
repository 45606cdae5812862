package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/logging"
)

// Subscriber receives every emitted event synchronously, in emission order.
// A subscriber must not call Subscribe or Close.
type Subscriber func(Event)

// EventEmitter fans lifecycle events out to subscribers and to a buffered
// channel. Channel delivery never blocks the engine for long: a full channel
// drops the event after a short wait.
type EventEmitter struct {
	mu           sync.RWMutex
	events       chan Event
	subscribers  []Subscriber
	closed       bool
	droppedCount atomic.Uint64
	logger       *logging.Logger
	now          func() time.Time
}

// NewEventEmitter creates a new EventEmitter with the given channel buffer size.
// A zero size disables channel delivery.
func NewEventEmitter(bufferSize int, logger *logging.Logger) *EventEmitter {
	e := &EventEmitter{
		logger: logger,
		now:    time.Now,
	}
	if bufferSize > 0 {
		e.events = make(chan Event, bufferSize)
	}
	return e
}

// Subscribe registers fn for all subsequent events.
func (e *EventEmitter) Subscribe(fn Subscriber) {
	if e == nil || fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// Emit delivers event to subscribers, then to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	for _, fn := range e.subscribers {
		fn(event)
	}

	if e.events == nil {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("event channel full, dropped event",
				"total_dropped", count,
				"type", event.Type,
				"task_id", event.TaskID)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events, or nil when channel delivery is disabled.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close stops delivery and closes the events channel. Later emits are ignored.
func (e *EventEmitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.events != nil {
		close(e.events)
	}
}
