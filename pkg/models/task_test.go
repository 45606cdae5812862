package models

import (
	"testing"
	"time"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"planning is valid", TaskStatusPlanning, true},
		{"executing is valid", TaskStatusExecuting, true},
		{"evaluating is valid", TaskStatusEvaluating, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"cancelled is valid", TaskStatusCancelled, true},
		{"escalated is valid", TaskStatusEscalated, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskStatusPending, TaskStatusPlanning, true},
		{TaskStatusPending, TaskStatusExecuting, false},
		{TaskStatusPending, TaskStatusCancelled, true},
		{TaskStatusPlanning, TaskStatusExecuting, true},
		{TaskStatusPlanning, TaskStatusFailed, true},
		{TaskStatusPlanning, TaskStatusCompleted, false},
		{TaskStatusExecuting, TaskStatusEvaluating, true},
		{TaskStatusExecuting, TaskStatusPlanning, false},
		{TaskStatusEvaluating, TaskStatusPlanning, true},
		{TaskStatusEvaluating, TaskStatusCompleted, true},
		{TaskStatusEvaluating, TaskStatusFailed, true},
		{TaskStatusEvaluating, TaskStatusEscalated, true},
		{TaskStatusEvaluating, TaskStatusCancelled, true},
		{TaskStatusCompleted, TaskStatusPlanning, false},
		{TaskStatusFailed, TaskStatusCancelled, false},
		{TaskStatusCancelled, TaskStatusPlanning, false},
		{TaskStatusEscalated, TaskStatusPlanning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_CancelReachableFromNonTerminal(t *testing.T) {
	for status := range validTransitions {
		if status.IsTerminal() {
			continue
		}
		if !status.CanTransitionTo(TaskStatusCancelled) {
			t.Errorf("%s cannot transition to cancelled", status)
		}
	}
}

func TestTaskStatus_TerminalHasNoTransitions(t *testing.T) {
	for status, next := range validTransitions {
		if status.IsTerminal() && len(next) != 0 {
			t.Errorf("terminal status %s has transitions %v", status, next)
		}
	}
}

func TestPriority_Valid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if !p.Valid() {
			t.Errorf("Priority(%q).Valid() = false", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Error("Priority(\"urgent\").Valid() = true")
	}
}

func TestDecision_Valid(t *testing.T) {
	for _, d := range []Decision{DecisionContinue, DecisionComplete, DecisionAbort, DecisionEscalate} {
		if !d.Valid() {
			t.Errorf("Decision(%q).Valid() = false", d)
		}
	}
	if Decision("retry").Valid() {
		t.Error("Decision(\"retry\").Valid() = true")
	}
}

func TestTaskContext_CloneIsIndependent(t *testing.T) {
	start := time.Now()
	score := 75.0
	ctx := NewTaskContext(Task{
		ID:                 "task-1",
		Title:              "Add endpoint",
		AcceptanceCriteria: []string{"endpoint returns 200"},
		Dependencies:       []string{"task-0"},
	})
	ctx.StartTime = &start
	ctx.Metrics.QualityScore = &score
	ctx.Iterations = append(ctx.Iterations, TaskIteration{
		Number: 1,
		Steps: []ExecutionStep{
			{Index: 0, Description: "write handler", Artifacts: []string{"handler.go"}},
		},
		Evaluation: &EvaluationResult{OverallScore: 75, Issues: []string{"missing test"}},
		Decision:   ContinuationDecision{Decision: DecisionContinue, NextActions: []string{"add test"}},
	})

	clone := ctx.Clone()
	clone.Task.AcceptanceCriteria[0] = "changed"
	clone.Task.Dependencies[0] = "changed"
	*clone.StartTime = start.Add(time.Hour)
	*clone.Metrics.QualityScore = 10
	clone.Iterations[0].Steps[0].Artifacts[0] = "changed.go"
	clone.Iterations[0].Evaluation.Issues[0] = "changed"
	clone.Iterations[0].Decision.NextActions[0] = "changed"

	if ctx.Task.AcceptanceCriteria[0] != "endpoint returns 200" {
		t.Error("clone shares acceptance criteria")
	}
	if ctx.Task.Dependencies[0] != "task-0" {
		t.Error("clone shares dependencies")
	}
	if !ctx.StartTime.Equal(start) {
		t.Error("clone shares start time")
	}
	if *ctx.Metrics.QualityScore != 75 {
		t.Error("clone shares quality score")
	}
	if ctx.Iterations[0].Steps[0].Artifacts[0] != "handler.go" {
		t.Error("clone shares step artifacts")
	}
	if ctx.Iterations[0].Evaluation.Issues[0] != "missing test" {
		t.Error("clone shares evaluation issues")
	}
	if ctx.Iterations[0].Decision.NextActions[0] != "add test" {
		t.Error("clone shares decision next actions")
	}
}

func TestTaskContext_CloneNil(t *testing.T) {
	var ctx *TaskContext
	if ctx.Clone() != nil {
		t.Error("nil.Clone() should be nil")
	}
}

func TestTaskIteration_StepCounts(t *testing.T) {
	it := TaskIteration{Steps: []ExecutionStep{
		{Status: StepStatusCompleted},
		{Status: StepStatusFailed},
		{Status: StepStatusFailed},
	}}
	failed, total := it.StepCounts()
	if failed != 2 || total != 3 {
		t.Errorf("StepCounts() = (%d, %d), want (2, 3)", failed, total)
	}
}

func TestTaskContext_Elapsed(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ctx := NewTaskContext(Task{ID: "t"})
	if got := ctx.Elapsed(start); got != 0 {
		t.Errorf("Elapsed before start = %v, want 0", got)
	}
	ctx.StartTime = &start
	if got := ctx.Elapsed(start.Add(time.Minute)); got != time.Minute {
		t.Errorf("Elapsed = %v, want 1m", got)
	}
	end := start.Add(30 * time.Second)
	ctx.EndTime = &end
	if got := ctx.Elapsed(start.Add(time.Hour)); got != 30*time.Second {
		t.Errorf("Elapsed after end = %v, want 30s", got)
	}
}
