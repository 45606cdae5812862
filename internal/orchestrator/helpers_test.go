package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/agent"
	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/quality"
	"github.com/ShayCichocki/taskpilot/internal/testutil"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// fakeClock returns start and then advances by step on every call.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), step: step}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// eventLog records emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// typesFor returns the event types recorded for taskID, in order.
func (l *eventLog) typesFor(taskID string) []EventType {
	var out []EventType
	for _, ev := range l.all() {
		if ev.TaskID == taskID && ev.Type != EventStepOutput {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (l *eventLog) count(typ EventType) int {
	n := 0
	for _, ev := range l.all() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// harness wires an engine to in-memory collaborators.
type harness struct {
	invoker   *testutil.FakeInvoker
	generator *testutil.FakeGenerator
	evaluator quality.Evaluator
	sessions  *agent.SessionManager
	engine    *Engine
	events    *eventLog

	mu       sync.Mutex
	plan     func(prompt string) (string, error)
	criteria func(prompt string) (string, error)
}

// testEngineConfig returns defaults with a generous duration cap.
func testEngineConfig() config.EngineConfig {
	cfg := config.Default().Engine
	cfg.MaxDuration = time.Hour
	return cfg
}

func newHarness(t *testing.T, cfg config.EngineConfig, evaluator quality.Evaluator, opts ...EngineOption) *harness {
	t.Helper()

	h := &harness{
		invoker:   testutil.NewFakeInvoker(),
		generator: testutil.NewFakeGenerator(),
		evaluator: evaluator,
		sessions:  agent.NewSessionManager(0),
		events:    &eventLog{},
		plan: func(string) (string, error) {
			return "1. Implement the change\n2. Run the tests", nil
		},
		criteria: func(string) (string, error) { return "false", nil },
	}
	h.generator.Handler = func(system, prompt string) (string, error) {
		h.mu.Lock()
		plan, criteria := h.plan, h.criteria
		h.mu.Unlock()
		if system == criterionSystemPrompt {
			return criteria(prompt)
		}
		return plan(prompt)
	}

	emitter := NewEventEmitter(0, nil)
	emitter.Subscribe(h.events.record)

	steps := NewStepExecutor(h.invoker, h.sessions, StepOptions{MaxTurns: 3, Timeout: time.Second})
	all := append([]EngineOption{WithEmitter(emitter)}, opts...)
	if evaluator == nil {
		h.engine = NewEngine(cfg, h.generator, steps, nil, all...)
	} else {
		h.engine = NewEngine(cfg, h.generator, steps, evaluator, all...)
	}
	return h
}

func (h *harness) setPlan(fn func(prompt string) (string, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plan = fn
}

func (h *harness) setCriteria(fn func(prompt string) (string, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.criteria = fn
}

// run executes task to completion on the harness engine.
func (h *harness) run(t *testing.T, task models.Task) *models.TaskContext {
	t.Helper()
	lc := h.engine.NewLifecycle(task)
	status := h.engine.Run(context.Background(), lc)
	if !status.IsTerminal() {
		t.Fatalf("Run returned non-terminal status %s", status)
	}
	return lc.Snapshot()
}

// newScheduler starts a scheduler on the harness engine and closes it on cleanup.
func (h *harness) newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler(h.engine)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func hasErrorKind(tc *models.TaskContext, kind string) bool {
	for _, e := range tc.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
