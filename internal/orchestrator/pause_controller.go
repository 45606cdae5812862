package orchestrator

import (
	"context"
	"sync"

	"github.com/ShayCichocki/taskpilot/internal/logging"
)

// PauseController gates the scheduler worker between tasks. While paused,
// WaitIfPaused blocks until Resume, Stop or the context ends.
type PauseController struct {
	mu sync.Mutex
	// resumed is non-nil while paused and is closed by Resume.
	resumed chan struct{}

	stopped  chan struct{}
	stopOnce sync.Once
	logger   *logging.Logger
}

// NewPauseController creates a running (unpaused) PauseController.
func NewPauseController(logger *logging.Logger) *PauseController {
	return &PauseController{
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Pause stops new tasks from starting. Pausing twice is a no-op.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resumed == nil {
		p.resumed = make(chan struct{})
		p.logger.Info("scheduler paused, no new tasks will start")
	}
}

// Resume releases any waiters. Resuming while running is a no-op.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resumed != nil {
		close(p.resumed)
		p.resumed = nil
		p.logger.Info("scheduler resumed")
	}
}

// Stop releases waiters permanently; later waits return ErrSchedulerClosed.
func (p *PauseController) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
}

// IsPaused reports whether the controller is paused.
func (p *PauseController) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resumed != nil
}

// IsStopped reports whether Stop has been called.
func (p *PauseController) IsStopped() bool {
	select {
	case <-p.stopped:
		return true
	default:
		return false
	}
}

// WaitIfPaused returns nil once the controller is running. It returns
// ErrSchedulerClosed after Stop and ctx.Err() if the context ends first.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	for {
		if p.IsStopped() {
			return ErrSchedulerClosed
		}

		p.mu.Lock()
		resumed := p.resumed
		p.mu.Unlock()
		if resumed == nil {
			return nil
		}

		select {
		case <-resumed:
			// A Pause may have raced the wakeup; check again.
		case <-p.stopped:
			return ErrSchedulerClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
