package orchestrator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func newTestLifecycle(step time.Duration) (*Lifecycle, *fakeClock) {
	clock := newFakeClock(step)
	return NewLifecycle(models.Task{ID: "task-1", Title: "Task"}, clock, 0.05, nil), clock
}

func TestLifecycle_Transitions(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)

	if lc.Status() != models.TaskStatusPending {
		t.Fatalf("expected pending, got %s", lc.Status())
	}
	if err := lc.Transition(models.TaskStatusExecuting); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending -> executing: expected ErrInvalidTransition, got %v", err)
	}

	for _, to := range []models.TaskStatus{
		models.TaskStatusPlanning,
		models.TaskStatusExecuting,
		models.TaskStatusEvaluating,
		models.TaskStatusPlanning,
		models.TaskStatusExecuting,
		models.TaskStatusEvaluating,
		models.TaskStatusCompleted,
	} {
		if err := lc.Transition(to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	snap := lc.Snapshot()
	if snap.StartTime == nil || snap.EndTime == nil {
		t.Fatal("expected start and end times")
	}
	if !snap.EndTime.After(*snap.StartTime) {
		t.Errorf("end %v not after start %v", snap.EndTime, snap.StartTime)
	}
}

func TestLifecycle_StartTimeSetOnce(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)

	_ = lc.Transition(models.TaskStatusPlanning)
	first := *lc.Snapshot().StartTime

	_ = lc.Transition(models.TaskStatusExecuting)
	_ = lc.Transition(models.TaskStatusEvaluating)
	_ = lc.Transition(models.TaskStatusPlanning)

	if got := *lc.Snapshot().StartTime; !got.Equal(first) {
		t.Errorf("start time moved from %v to %v", first, got)
	}
}

func TestLifecycle_TerminalIsFinal(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)
	_ = lc.Transition(models.TaskStatusPlanning)
	if err := lc.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	end := *lc.Snapshot().EndTime

	if err := lc.Cancel(); !errors.Is(err, ErrTerminal) {
		t.Errorf("second Cancel: expected ErrTerminal, got %v", err)
	}
	if err := lc.Transition(models.TaskStatusExecuting); !errors.Is(err, ErrTerminal) {
		t.Errorf("transition after cancel: expected ErrTerminal, got %v", err)
	}
	if err := lc.Fail(models.TaskError{Message: "late"}); !errors.Is(err, ErrTerminal) {
		t.Errorf("Fail after cancel: expected ErrTerminal, got %v", err)
	}
	if err := lc.AppendIteration(models.TaskIteration{}, 10); !errors.Is(err, ErrTerminal) {
		t.Errorf("AppendIteration after cancel: expected ErrTerminal, got %v", err)
	}

	snap := lc.Snapshot()
	if !snap.EndTime.Equal(end) {
		t.Error("end time changed after terminal status")
	}
	if len(snap.Errors) != 0 || len(snap.Iterations) != 0 {
		t.Error("terminal lifecycle accepted new records")
	}
}

func TestLifecycle_CancelPending(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)
	if err := lc.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	snap := lc.Snapshot()
	if snap.Status != models.TaskStatusCancelled || snap.EndTime == nil {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.StartTime != nil {
		t.Error("a task cancelled before starting has no start time")
	}
}

func TestLifecycle_FailRecordsError(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)
	_ = lc.Transition(models.TaskStatusPlanning)

	err := lc.Fail(models.TaskError{
		Type:     models.ErrorTypeSystem,
		Severity: models.SeverityCritical,
		Kind:     models.ErrorKindPlanningFailed,
		Message:  "plan generation failed",
	})
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}

	snap := lc.Snapshot()
	if snap.Status != models.TaskStatusFailed {
		t.Errorf("expected failed, got %s", snap.Status)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Timestamp.IsZero() {
		t.Errorf("expected one timestamped error, got %+v", snap.Errors)
	}
}

func TestLifecycle_AppendIterationMetrics(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)
	_ = lc.Transition(models.TaskStatusPlanning)

	first := models.TaskIteration{
		Steps: []models.ExecutionStep{
			{Status: models.StepStatusCompleted, Artifacts: []string{"a.go", "b.go"}},
			{Status: models.StepStatusFailed},
		},
		Evaluation: &models.EvaluationResult{OverallScore: 60, TestsPassed: 4, TestsFailed: 2, Coverage: 55},
	}
	second := models.TaskIteration{
		Steps: []models.ExecutionStep{
			{Status: models.StepStatusCompleted, Artifacts: []string{"b.go", "c.go"}},
		},
		Evaluation: &models.EvaluationResult{OverallScore: 50, TestsPassed: 3, TestsFailed: 0, Coverage: 40},
	}

	if err := lc.AppendIteration(first, 10); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := lc.AppendIteration(second, 10); err != nil {
		t.Fatalf("append second: %v", err)
	}
	lc.AddLLMCalls(3)

	snap := lc.Snapshot()
	m := snap.Metrics
	if m.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", m.Iterations)
	}
	if snap.Iterations[0].Number != 1 || snap.Iterations[1].Number != 2 {
		t.Errorf("iteration numbers = %d, %d", snap.Iterations[0].Number, snap.Iterations[1].Number)
	}
	if len(snap.Evaluations) != 2 {
		t.Errorf("expected 2 evaluations, got %d", len(snap.Evaluations))
	}
	if m.FilesChanged != 3 {
		t.Errorf("FilesChanged = %d, want 3", m.FilesChanged)
	}
	if m.TestsPassed != 4 || m.TestsFailed != 2 || m.Coverage != 55 {
		t.Errorf("test counters decreased: %+v", m)
	}
	if m.QualityScore == nil || *m.QualityScore != 50 {
		t.Errorf("QualityScore = %v, want latest 50", m.QualityScore)
	}
	if m.AgentCalls != 3 || m.LLMCalls != 3 {
		t.Errorf("calls = %d agent, %d llm", m.AgentCalls, m.LLMCalls)
	}
	if math.Abs(m.EstimatedCost-0.30) > 1e-9 {
		t.Errorf("EstimatedCost = %v, want 0.30", m.EstimatedCost)
	}
}

func TestLifecycle_AppendIterationCap(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)
	_ = lc.Transition(models.TaskStatusPlanning)

	if err := lc.AppendIteration(models.TaskIteration{}, 1); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := lc.AppendIteration(models.TaskIteration{}, 1); !errors.Is(err, ErrMaxIterationsExceeded) {
		t.Errorf("expected ErrMaxIterationsExceeded, got %v", err)
	}
	if lc.IterationCount() != 1 {
		t.Errorf("IterationCount() = %d, want 1", lc.IterationCount())
	}
}

func TestLifecycle_AppendIterationZeroCap(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)
	_ = lc.Transition(models.TaskStatusPlanning)

	if err := lc.AppendIteration(models.TaskIteration{}, 0); !errors.Is(err, ErrMaxIterationsExceeded) {
		t.Errorf("expected ErrMaxIterationsExceeded, got %v", err)
	}
	if lc.IterationCount() != 0 {
		t.Errorf("IterationCount() = %d, want 0", lc.IterationCount())
	}
}

func TestLifecycle_ProgressNeverDecreases(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)

	lc.SetProgress(40)
	lc.SetProgress(20)
	if lc.Progress() != 40 {
		t.Errorf("Progress() = %v, want 40", lc.Progress())
	}
	lc.SetProgress(250)
	if lc.Progress() != 100 {
		t.Errorf("Progress() = %v, want 100", lc.Progress())
	}
}

func TestLifecycle_SnapshotIsCopy(t *testing.T) {
	lc, _ := newTestLifecycle(time.Second)
	_ = lc.Transition(models.TaskStatusPlanning)
	_ = lc.AppendIteration(models.TaskIteration{Plan: "original"}, 10)

	snap := lc.Snapshot()
	snap.Iterations[0].Plan = "changed"
	snap.Status = models.TaskStatusCompleted

	again := lc.Snapshot()
	if again.Iterations[0].Plan != "original" || again.Status != models.TaskStatusPlanning {
		t.Error("snapshot mutation leaked into the lifecycle")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := NewLifecycle(models.Task{ID: "a"}, nil, 0, nil)
	b := NewLifecycle(models.Task{ID: "b"}, nil, 0, nil)

	if err := r.Add(a); err != nil {
		t.Fatalf("Add(a): %v", err)
	}
	if err := r.Add(b); err != nil {
		t.Fatalf("Add(b): %v", err)
	}
	if err := r.Add(NewLifecycle(models.Task{ID: "a"}, nil, 0, nil)); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("duplicate Add: expected ErrDuplicateTask, got %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if _, ok := r.Status("missing"); ok {
		t.Error("expected missing task to be absent")
	}
	all := r.All()
	if len(all) != 2 || all[0].Task.ID != "a" || all[1].Task.ID != "b" {
		t.Errorf("All() not in submission order: %+v", all)
	}
	if status, ok := r.StatusOf("b"); !ok || status != models.TaskStatusPending {
		t.Errorf("StatusOf(b) = %s, %v", status, ok)
	}
}
