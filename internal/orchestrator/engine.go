package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/llm"
	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/internal/quality"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Engine drives one task at a time through repeated plan, execute,
// evaluate and decide passes until it reaches a terminal status.
type Engine struct {
	cfg       config.EngineConfig
	policy    DecisionPolicy
	planner   llm.Generator
	criteria  *CriteriaChecker
	steps     *StepExecutor
	evaluator quality.Evaluator
	emitter   *EventEmitter
	clock     Clock
	logger    *logging.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the time source used for timestamps and the duration cap.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEmitter sets the emitter that receives lifecycle events.
func WithEmitter(em *EventEmitter) EngineOption {
	return func(e *Engine) { e.emitter = em }
}

// NewEngine creates an Engine. planner answers both planning and
// acceptance-criteria prompts. evaluator may be nil to disable evaluation.
// A negative cfg.MaxDuration disables the duration cap.
func NewEngine(cfg config.EngineConfig, planner llm.Generator, steps *StepExecutor, evaluator quality.Evaluator, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:       cfg,
		policy:    PolicyFromConfig(cfg),
		planner:   planner,
		steps:     steps,
		evaluator: evaluator,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.criteria = NewCriteriaChecker(planner, e.logger.WithPhase("criteria"))
	if e.emitter == nil {
		e.emitter = NewEventEmitter(0, e.logger)
	}

	steps.emitter = e.emitter
	steps.clock = e.clock
	steps.logger = e.logger.WithPhase("execute")
	return e
}

// Emitter returns the engine's event emitter.
func (e *Engine) Emitter() *EventEmitter {
	return e.emitter
}

// NewLifecycle creates a pending lifecycle that uses the engine's clock and cost settings.
func (e *Engine) NewLifecycle(task models.Task) *Lifecycle {
	return NewLifecycle(task, e.clock, e.cfg.CostPerCall, e.logger)
}

// Run drives lc until it reaches a terminal status and returns that status.
// Task failures are reported through the lifecycle and events, never as errors.
// Cancelling ctx cancels the task.
func (e *Engine) Run(ctx context.Context, lc *Lifecycle) (status models.TaskStatus) {
	task := lc.Task()
	logger := e.logger.WithTask(task.ID)

	defer e.steps.CloseSession(task.ID)
	defer func() {
		if r := recover(); r != nil {
			e.fail(lc, models.TaskError{
				Type:     models.ErrorTypeSystem,
				Severity: models.SeverityCritical,
				Kind:     models.ErrorKindUnclassified,
				Message:  fmt.Sprintf("unrecovered error: %v", r),
			})
		}
		status = lc.Status()
	}()

	if err := lc.Transition(models.TaskStatusPlanning); err != nil {
		logger.Debug("task not started", "error", err)
		return lc.Status()
	}
	logger.Info("task started", "title", task.Title)
	e.emit(lc, Event{Type: EventTaskStarted, Context: lc.Snapshot()})

	for {
		if lc.Status().IsTerminal() {
			return lc.Status()
		}
		if ctx.Err() != nil {
			e.cancel(lc, ctx.Err())
			return lc.Status()
		}

		count := lc.IterationCount()
		if count >= e.cfg.MaxIterations {
			e.fail(lc, models.TaskError{
				Type:     models.ErrorTypeExecution,
				Severity: models.SeverityHigh,
				Kind:     models.ErrorKindMaxIterationsExceeded,
				Message:  fmt.Sprintf("%v: %d of %d iterations used", ErrMaxIterationsExceeded, count, e.cfg.MaxIterations),
				Recovery: "Raise engine.max_iterations or narrow the task",
			})
			return lc.Status()
		}

		if stop := e.iterate(ctx, lc, task, count+1); stop {
			return lc.Status()
		}
	}
}

// iterate runs one pass and reports whether the loop should stop.
func (e *Engine) iterate(ctx context.Context, lc *Lifecycle, task models.Task, number int) bool {
	logger := e.logger.WithTask(task.ID).With("iteration", number)

	it := models.TaskIteration{
		ID:        uuid.NewString(),
		Number:    number,
		StartTime: e.clock.Now(),
	}

	// Plan.
	plan, err := e.planner.Generate(ctx, planSystemPrompt, BuildPlanPrompt(lc.Snapshot()))
	lc.AddLLMCalls(1)
	if err != nil {
		if lc.Status().IsTerminal() || ctx.Err() != nil {
			return lc.Status().IsTerminal()
		}
		e.fail(lc, models.TaskError{
			Type:      models.ErrorTypeSystem,
			Severity:  models.SeverityCritical,
			Kind:      models.ErrorKindPlanningFailed,
			Message:   fmt.Sprintf("plan generation failed: %v", err),
			Iteration: number,
		})
		return true
	}

	steps, truncated := ParsePlan(plan, e.cfg.MaxStepsPerIteration)
	if len(steps) == 0 {
		e.fail(lc, models.TaskError{
			Type:      models.ErrorTypeSystem,
			Severity:  models.SeverityCritical,
			Kind:      models.ErrorKindPlanningFailed,
			Message:   ErrNoPlan.Error(),
			Details:   truncate(plan, 500),
			Iteration: number,
		})
		return true
	}
	if truncated {
		logger.Info("plan truncated", "max_steps", e.cfg.MaxStepsPerIteration)
	}
	it.Plan = plan
	logger.Debug("plan produced", "steps", len(steps))

	// Execute.
	if err := lc.Transition(models.TaskStatusExecuting); err != nil {
		return true
	}
	for i := range steps {
		if lc.Status().IsTerminal() {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		step, err := e.steps.Execute(ctx, task, number, steps[i])
		steps[i] = step
		if err != nil {
			lc.AddError(stepError(err, number, step))
		}
	}
	it.Steps = steps

	// Evaluate.
	if err := lc.Transition(models.TaskStatusEvaluating); err != nil {
		return true
	}
	if e.shouldEvaluate(number-1, lc.Progress()) {
		it.Evaluation = e.evaluate(ctx, lc, number)
	}

	// Decide.
	history := lc.Snapshot()
	criteria := e.criteria.Check(ctx, history, it)
	lc.AddLLMCalls(criteria.Calls)

	decision := MakeContinuationDecision(e.policy, history, it, criteria)
	if !decision.Decision.Valid() {
		e.fail(lc, models.TaskError{
			Type:      models.ErrorTypeSystem,
			Severity:  models.SeverityCritical,
			Kind:      models.ErrorKindDecisionFailed,
			Message:   fmt.Sprintf("unrecognized decision %q", decision.Decision),
			Iteration: number,
		})
		return true
	}
	it.Decision = decision
	it.EndTime = e.clock.Now()

	if err := lc.AppendIteration(it, e.cfg.MaxIterations); err != nil {
		logger.Debug("iteration not recorded", "error", err)
		return lc.Status().IsTerminal()
	}
	e.updateProgress(lc)

	logger.Info("iteration completed",
		"decision", decision.Decision,
		"confidence", decision.Confidence,
		"reasoning", decision.Reasoning)
	e.emit(lc, Event{
		Type:       EventIterationCompleted,
		Iteration:  number,
		Decision:   decision.Decision,
		Confidence: decision.Confidence,
		Message:    decision.Reasoning,
	})

	// The duration cap overrides whatever the decision was.
	if e.cfg.MaxDuration >= 0 {
		if elapsed := lc.Elapsed(); elapsed >= e.cfg.MaxDuration {
			e.fail(lc, models.TaskError{
				Type:      models.ErrorTypeExecution,
				Severity:  models.SeverityHigh,
				Kind:      models.ErrorKindDurationExceeded,
				Message:   fmt.Sprintf("%v: ran %s, limit %s", ErrDurationExceeded, elapsed.Round(time.Millisecond), e.cfg.MaxDuration),
				Recovery:  "Raise engine.max_duration or split the task",
				Iteration: number,
			})
			return true
		}
	}

	switch decision.Decision {
	case models.DecisionContinue:
		return lc.Transition(models.TaskStatusPlanning) != nil
	case models.DecisionComplete:
		e.finish(lc, models.TaskStatusCompleted, decision)
	case models.DecisionAbort:
		e.finish(lc, models.TaskStatusFailed, decision)
	case models.DecisionEscalate:
		e.finish(lc, models.TaskStatusEscalated, decision)
	}
	return true
}

// shouldEvaluate applies the evaluation cadence: every interval-th iteration,
// counting from the first, or whenever progress is past the threshold.
func (e *Engine) shouldEvaluate(priorIterations int, progress float64) bool {
	if e.evaluator == nil {
		return false
	}
	interval := e.cfg.EvaluationInterval
	if interval <= 0 {
		interval = 1
	}
	return priorIterations%interval == 0 || progress > e.cfg.EvaluationProgress
}

// evaluate calls the evaluator. Failures are recorded and yield nil.
func (e *Engine) evaluate(ctx context.Context, lc *Lifecycle, number int) *models.EvaluationResult {
	result, err := e.evaluator.Evaluate(ctx)
	switch {
	case errors.Is(err, quality.ErrNoApplicableGates):
		e.logger.WithTask(lc.Task().ID).Debug("not evaluated: no quality gate applies", "iteration", number)
		return nil
	case errors.Is(err, quality.ErrAlreadyRunning):
		lc.AddError(models.TaskError{
			Type:      models.ErrorTypeEvaluation,
			Severity:  models.SeverityLow,
			Kind:      models.ErrorKindAlreadyRunning,
			Message:   "evaluation skipped: evaluator already running",
			Iteration: number,
		})
		return nil
	case err != nil:
		lc.AddError(models.TaskError{
			Type:      models.ErrorTypeEvaluation,
			Severity:  models.SeverityMedium,
			Kind:      models.ErrorKindEvaluationFailed,
			Message:   fmt.Sprintf("evaluation failed: %v", err),
			Iteration: number,
		})
		return nil
	case result == nil:
		return nil
	}

	out := result.Clone()
	if out.Timestamp.IsZero() {
		out.Timestamp = e.clock.Now()
	}
	return &out
}

// updateProgress raises progress to the larger of the iteration ratio and
// the latest quality score.
func (e *Engine) updateProgress(lc *Lifecycle) {
	snap := lc.Snapshot()
	progress := snap.Progress
	if e.cfg.MaxIterations > 0 {
		progress = max(progress, float64(len(snap.Iterations))/float64(e.cfg.MaxIterations)*100)
	}
	if latest := snap.LatestEvaluation(); latest != nil {
		progress = max(progress, latest.OverallScore)
	}
	lc.SetProgress(progress)
}

// finish moves lc to a terminal status chosen by a decision.
func (e *Engine) finish(lc *Lifecycle, status models.TaskStatus, decision models.ContinuationDecision) {
	if err := lc.Transition(status); err != nil {
		return
	}
	if status == models.TaskStatusCompleted {
		lc.SetProgress(100)
	}

	logger := e.logger.WithTask(lc.ID())
	if status == models.TaskStatusEscalated {
		logger.Warn("task escalated", "reasoning", decision.Reasoning)
	} else {
		logger.Info("task finished", "status", status, "reasoning", decision.Reasoning)
	}

	e.emit(lc, Event{
		Type:       statusEvent(status),
		Decision:   decision.Decision,
		Confidence: decision.Confidence,
		Message:    decision.Reasoning,
		Context:    lc.Snapshot(),
	})
}

// fail records taskErr and moves lc to failed, unless it is already terminal.
func (e *Engine) fail(lc *Lifecycle, taskErr models.TaskError) {
	if err := lc.Fail(taskErr); err != nil {
		return
	}
	e.emit(lc, Event{
		Type:    EventTaskFailed,
		Message: taskErr.Message,
		Context: lc.Snapshot(),
	})
}

// cancel moves lc to cancelled because the run context ended.
func (e *Engine) cancel(lc *Lifecycle, cause error) {
	if err := lc.Cancel(); err != nil {
		return
	}
	e.logger.WithTask(lc.ID()).Info("task cancelled", "cause", cause)
	e.emit(lc, Event{
		Type:    EventTaskCancelled,
		Message: fmt.Sprintf("run stopped: %v", cause),
		Context: lc.Snapshot(),
	})
}

// emit fills in the task fields of ev and publishes it.
func (e *Engine) emit(lc *Lifecycle, ev Event) {
	task := lc.Task()
	ev.TaskID = task.ID
	ev.TaskTitle = task.Title
	ev.Status = lc.Status()
	e.emitter.Emit(ev)
}
