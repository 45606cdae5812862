package state

import (
	"sync"
	"sync/atomic"

	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/internal/orchestrator"
)

// Recorder persists task contexts carried on lifecycle events. A task is
// written when it starts and again when it reaches a terminal status, so a
// row left in a non-terminal status marks an interrupted run.
//
// Events for one task can arrive out of order, for example a cancel issued
// while the engine is announcing the start. Once a task's terminal event has
// been handled, later non-terminal snapshots for it are dropped.
type Recorder struct {
	store    TaskWriter
	logger   *logging.Logger
	saved    atomic.Int64
	failures atomic.Int64

	mu       sync.Mutex
	finished map[string]struct{}
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store TaskWriter, logger *logging.Logger) *Recorder {
	return &Recorder{
		store:    store,
		logger:   logger,
		finished: make(map[string]struct{}),
	}
}

// Handle is an orchestrator.Subscriber. Write failures are logged and
// counted; they never affect the task.
func (r *Recorder) Handle(ev orchestrator.Event) {
	if ev.Context == nil {
		return
	}
	if ev.Type != orchestrator.EventTaskStarted && !ev.Type.IsTerminal() {
		return
	}
	id := ev.Context.Task.ID

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, done := r.finished[id]; done && !ev.Context.Status.IsTerminal() {
		r.logger.WithTask(id).Debug("stale history write dropped", "event", ev.Type, "status", ev.Context.Status)
		return
	}
	if ev.Type.IsTerminal() {
		r.finished[id] = struct{}{}
	}

	if err := r.store.SaveContext(ev.Context); err != nil {
		r.failures.Add(1)
		r.logger.WithTask(ev.TaskID).Error("history write failed", "event", ev.Type, "error", err)
		return
	}
	r.saved.Add(1)
	r.logger.WithTask(ev.TaskID).Debug("history recorded", "event", ev.Type, "status", ev.Context.Status)
}

// Saved returns the number of successful writes.
func (r *Recorder) Saved() int64 {
	return r.saved.Load()
}

// Failures returns the number of failed writes.
func (r *Recorder) Failures() int64 {
	return r.failures.Load()
}
