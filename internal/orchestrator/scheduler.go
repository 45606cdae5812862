package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Scheduler admits tasks in FIFO order and runs them one at a time.
// A task is admitted only when every dependency has completed.
type Scheduler struct {
	engine   *Engine
	registry *Registry
	pause    *PauseController
	logger   *logging.Logger

	// queue holds admitted tasks that have not started.
	queue []*Lifecycle
	// running is the ID of the executing task, or "".
	running string
	closed  bool
	// changed is closed and replaced whenever queue or running changes.
	changed chan struct{}
	// trigger wakes the worker.
	trigger chan struct{}
	// mu protects queue, running, closed and changed.
	mu sync.Mutex

	// ctx is passed to the engine for every task.
	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRegistry shares a registry with other components.
func WithRegistry(r *Registry) SchedulerOption {
	return func(s *Scheduler) { s.registry = r }
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l *logging.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a Scheduler and starts its worker.
func NewScheduler(engine *Engine, opts ...SchedulerOption) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		engine:  engine,
		changed: make(chan struct{}),
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	s.pause = NewPauseController(s.logger)

	go s.loop()
	return s
}

// Submit admits task to the queue. It fails with a *DependencyUnmetError if
// any dependency is unknown or not completed, in which case nothing is queued.
func (s *Scheduler) Submit(task models.Task) error {
	if task.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	if task.Priority != "" && !task.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, task.Priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if s.registry.Contains(task.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	var missing []string
	for _, dep := range task.Dependencies {
		if status, ok := s.registry.StatusOf(dep); !ok || status != models.TaskStatusCompleted {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		s.logger.Info("task rejected, dependencies unmet", "task_id", task.ID, "missing", missing)
		return &DependencyUnmetError{TaskID: task.ID, Missing: missing}
	}

	lc := s.engine.NewLifecycle(task)
	if err := s.registry.Add(lc); err != nil {
		return fmt.Errorf("%w: %s", err, task.ID)
	}
	s.queue = append(s.queue, lc)
	s.notifyLocked()

	s.logger.Info("task queued", "task_id", task.ID, "queue_length", len(s.queue))
	// Emitted under s.mu so taskQueued always precedes taskStarted.
	s.engine.emit(lc, Event{Type: EventTaskQueued})

	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Status returns a copy of the task context for id.
func (s *Scheduler) Status(id string) (*models.TaskContext, bool) {
	return s.registry.Status(id)
}

// Tasks returns copies of every submitted task context in submission order.
func (s *Scheduler) Tasks() []*models.TaskContext {
	return s.registry.All()
}

// Cancel cancels a queued or running task. A running task stops at its
// next cancellation check; an in-flight agent call is allowed to finish.
func (s *Scheduler) Cancel(id string) error {
	lc, ok := s.registry.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err := lc.Cancel(); err != nil {
		return err
	}

	s.mu.Lock()
	for i, queued := range s.queue {
		if queued == lc {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.notifyLocked()
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("task cancelled", "task_id", id)
	s.engine.emit(lc, Event{
		Type:    EventTaskCancelled,
		Message: "cancelled by request",
		Context: lc.Snapshot(),
	})
	return nil
}

// QueueLength returns the number of admitted tasks that have not started.
func (s *Scheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Running returns the ID of the executing task, or "".
func (s *Scheduler) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pause stops new tasks from starting. The running task is unaffected.
func (s *Scheduler) Pause() {
	s.pause.Pause()
}

// Resume lets queued tasks start again.
func (s *Scheduler) Resume() {
	s.pause.Resume()
}

// Paused reports whether the scheduler is paused.
func (s *Scheduler) Paused() bool {
	return s.pause.IsPaused()
}

// WaitIdle blocks until the queue is empty and no task is running.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := len(s.queue) == 0 && s.running == ""
		changed := s.changed
		s.mu.Unlock()

		if idle {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSchedulerClosed
		}
	}
}

// Close stops accepting tasks and waits for the in-flight task, if any, to
// finish. Queued tasks stay pending.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	close(s.stop)
	s.notifyLocked()
	s.mu.Unlock()

	s.pause.Stop()
	<-s.done
	s.cancel()
	return nil
}

// loop is the single worker. It drains the queue and sleeps until the next
// submission.
func (s *Scheduler) loop() {
	defer close(s.done)

	for {
		if err := s.pause.WaitIfPaused(s.ctx); err != nil {
			return
		}
		lc, open := s.pop()
		if !open {
			return
		}
		if lc == nil {
			select {
			case <-s.trigger:
				continue
			case <-s.stop:
				return
			}
		}
		s.run(lc)
	}
}

// pop takes the next task and marks it running in one step, so WaitIdle
// never sees an idle gap between the two. open is false after Close.
func (s *Scheduler) pop() (lc *Lifecycle, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	if len(s.queue) == 0 {
		return nil, true
	}
	lc = s.queue[0]
	s.queue = s.queue[1:]
	s.running = lc.ID()
	s.notifyLocked()
	return lc, true
}

func (s *Scheduler) run(lc *Lifecycle) {
	defer func() {
		s.mu.Lock()
		s.running = ""
		s.notifyLocked()
		s.mu.Unlock()
	}()

	if lc.Status().IsTerminal() {
		return
	}
	s.logger.Debug("task dequeued", "task_id", lc.ID())
	status := s.engine.Run(s.ctx, lc)
	s.logger.Info("task drained", "task_id", lc.ID(), "status", status)
}

// notifyLocked wakes WaitIdle callers. s.mu must be held.
func (s *Scheduler) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
