package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Clock supplies the current time. Tests inject a fixed or stepping clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Lifecycle owns one task's TaskContext. The engine running the task is the
// only writer; readers get deep copies through Snapshot.
type Lifecycle struct {
	mu          sync.RWMutex
	tc          *models.TaskContext
	artifacts   map[string]struct{}
	clock       Clock
	costPerCall float64
	logger      *logging.Logger
}

// NewLifecycle creates a pending lifecycle for task.
func NewLifecycle(task models.Task, clock Clock, costPerCall float64, logger *logging.Logger) *Lifecycle {
	if clock == nil {
		clock = realClock{}
	}
	return &Lifecycle{
		tc:          models.NewTaskContext(task),
		artifacts:   make(map[string]struct{}),
		clock:       clock,
		costPerCall: costPerCall,
		logger:      logger.WithTask(task.ID),
	}
}

// ID returns the task ID.
func (l *Lifecycle) ID() string {
	return l.tc.Task.ID
}

// Task returns a copy of the task definition.
func (l *Lifecycle) Task() models.Task {
	return l.tc.Task.Clone()
}

// Status returns the current status.
func (l *Lifecycle) Status() models.TaskStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tc.Status
}

// IterationCount returns the number of recorded iterations.
func (l *Lifecycle) IterationCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tc.Iterations)
}

// Snapshot returns a deep copy of the task context.
func (l *Lifecycle) Snapshot() *models.TaskContext {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tc.Clone()
}

// Elapsed returns the time since execution started.
func (l *Lifecycle) Elapsed() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tc.Elapsed(l.clock.Now())
}

// Transition moves the task to status to. Entering planning for the first
// time stamps the start time; entering a terminal status stamps the end time.
func (l *Lifecycle) Transition(to models.TaskStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(to)
}

func (l *Lifecycle) transitionLocked(to models.TaskStatus) error {
	from := l.tc.Status
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, l.tc.Task.ID, from)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := l.clock.Now()
	if l.tc.StartTime == nil && to == models.TaskStatusPlanning {
		l.tc.StartTime = &now
	}
	if to.IsTerminal() {
		l.tc.EndTime = &now
		if latest := l.tc.LatestEvaluation(); latest != nil {
			score := latest.OverallScore
			l.tc.Metrics.QualityScore = &score
		}
	}
	l.tc.Status = to

	l.logger.Debug("status transition", "from", from, "to", to)
	return nil
}

// Cancel moves a non-terminal task to cancelled.
func (l *Lifecycle) Cancel() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(models.TaskStatusCancelled)
}

// Fail records err and moves the task to failed.
func (l *Lifecycle) Fail(taskErr models.TaskError) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tc.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, l.tc.Task.ID, l.tc.Status)
	}
	l.addErrorLocked(taskErr)
	return l.transitionLocked(models.TaskStatusFailed)
}

// AddError appends to the task's error log.
func (l *Lifecycle) AddError(taskErr models.TaskError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addErrorLocked(taskErr)
}

func (l *Lifecycle) addErrorLocked(taskErr models.TaskError) {
	if taskErr.Timestamp.IsZero() {
		taskErr.Timestamp = l.clock.Now()
	}
	l.tc.Errors = append(l.tc.Errors, taskErr)

	args := []any{"kind", taskErr.Kind, "type", taskErr.Type, "severity", taskErr.Severity}
	if taskErr.Iteration > 0 {
		args = append(args, "iteration", taskErr.Iteration)
	}
	switch taskErr.Severity {
	case models.SeverityHigh, models.SeverityCritical:
		l.logger.Error(taskErr.Message, args...)
	default:
		l.logger.Warn(taskErr.Message, args...)
	}
}

// AppendIteration records a finished iteration and folds it into the metrics.
// It refuses once the task is terminal or the iteration cap is reached.
func (l *Lifecycle) AppendIteration(it models.TaskIteration, maxIterations int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tc.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, l.tc.Task.ID, l.tc.Status)
	}
	if len(l.tc.Iterations) >= maxIterations {
		return ErrMaxIterationsExceeded
	}

	it = it.Clone()
	it.Number = len(l.tc.Iterations) + 1
	l.tc.Iterations = append(l.tc.Iterations, it)

	m := &l.tc.Metrics
	m.Iterations = len(l.tc.Iterations)
	m.AgentCalls += len(it.Steps)
	for _, step := range it.Steps {
		for _, path := range step.Artifacts {
			l.artifacts[path] = struct{}{}
		}
	}
	m.FilesChanged = len(l.artifacts)

	if it.Evaluation != nil {
		l.tc.Evaluations = append(l.tc.Evaluations, it.Evaluation.Clone())
		score := it.Evaluation.OverallScore
		m.QualityScore = &score
		m.TestsPassed = max(m.TestsPassed, it.Evaluation.TestsPassed)
		m.TestsFailed = max(m.TestsFailed, it.Evaluation.TestsFailed)
		m.Coverage = max(m.Coverage, it.Evaluation.Coverage)
	}
	l.updateCostLocked()
	return nil
}

// AddLLMCalls counts planning and criteria-check calls.
func (l *Lifecycle) AddLLMCalls(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tc.Metrics.LLMCalls += n
	l.updateCostLocked()
}

func (l *Lifecycle) updateCostLocked() {
	m := &l.tc.Metrics
	m.EstimatedCost = float64(m.AgentCalls+m.LLMCalls) * l.costPerCall
}

// SetProgress raises progress to p, capped at 100. Progress never decreases.
func (l *Lifecycle) SetProgress(p float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p = min(p, 100)
	if p > l.tc.Progress {
		l.tc.Progress = p
	}
}

// Progress returns the current progress percentage.
func (l *Lifecycle) Progress() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tc.Progress
}
