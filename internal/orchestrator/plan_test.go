package orchestrator

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func TestParsePlan(t *testing.T) {
	text := "1. Analyze the existing handler\n\n" +
		"- Implement the endpoint\n" +
		"```\n" +
		"2) Write unit tests\n" +
		"   \n" +
		"* Update the docs\n" +
		"Step 5: Wire the route\n"

	steps, truncated := ParsePlan(text, 0)
	if truncated {
		t.Error("unexpected truncation")
	}

	want := []struct {
		desc string
		typ  models.StepType
	}{
		{"Analyze the existing handler", models.StepTypeAnalysis},
		{"Implement the endpoint", models.StepTypeImplementation},
		{"Write unit tests", models.StepTypeTesting},
		{"Update the docs", models.StepTypeDocumentation},
		{"Wire the route", models.StepTypeImplementation},
	}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d: %+v", len(want), len(steps), steps)
	}
	for i, w := range want {
		if steps[i].Description != w.desc {
			t.Errorf("step %d description = %q, want %q", i, steps[i].Description, w.desc)
		}
		if steps[i].Type != w.typ {
			t.Errorf("step %d type = %s, want %s", i, steps[i].Type, w.typ)
		}
		if steps[i].Index != i {
			t.Errorf("step %d index = %d", i, steps[i].Index)
		}
		if steps[i].Status != models.StepStatusPending {
			t.Errorf("step %d status = %s, want pending", i, steps[i].Status)
		}
	}
}

func TestParsePlan_Truncates(t *testing.T) {
	steps, truncated := ParsePlan("a\nb\nc\nd", 2)
	if !truncated {
		t.Error("expected truncation")
	}
	if len(steps) != 2 || steps[1].Description != "b" {
		t.Errorf("unexpected steps: %+v", steps)
	}

	steps, truncated = ParsePlan("a\nb", 2)
	if truncated || len(steps) != 2 {
		t.Errorf("exact fit should not truncate: %v %+v", truncated, steps)
	}
}

func TestParsePlan_EmptyOrNoise(t *testing.T) {
	for _, text := range []string{"", "   \n\n", "```\n```", "-\n1.\n*"} {
		if steps, _ := ParsePlan(text, 0); len(steps) != 0 {
			t.Errorf("ParsePlan(%q) = %+v, want no steps", text, steps)
		}
	}
}

func TestClassifyStep(t *testing.T) {
	tests := []struct {
		desc string
		want models.StepType
	}{
		{"Run the test suite", models.StepTypeTesting},
		{"Add tests for the docs generator", models.StepTypeTesting},
		{"Document the API", models.StepTypeDocumentation},
		{"Analyze query performance", models.StepTypeAnalysis},
		{"Analyse the logs", models.StepTypeAnalysis},
		{"Refactor the parser", models.StepTypeImplementation},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := ClassifyStep(tt.desc); got != tt.want {
				t.Errorf("ClassifyStep(%q) = %s, want %s", tt.desc, got, tt.want)
			}
		})
	}
}

func TestBuildPlanPrompt(t *testing.T) {
	tc := models.NewTaskContext(models.Task{
		ID:                 "task-7",
		Title:              "Add health endpoint",
		Description:        "Expose /healthz",
		Requirements:       []string{"return 200"},
		AcceptanceCriteria: []string{"GET /healthz returns ok"},
	})
	tc.Iterations = append(tc.Iterations, models.TaskIteration{
		Steps: []models.ExecutionStep{{Status: models.StepStatusFailed}, {Status: models.StepStatusCompleted}},
		Decision: models.ContinuationDecision{
			Decision:  models.DecisionContinue,
			Reasoning: "Continuing: quality score 40.0 is below threshold 85.0",
		},
	})
	tc.Evaluations = append(tc.Evaluations, models.EvaluationResult{
		OverallScore: 40,
		Issues:       []string{"test gate failed"},
		Suggestions:  []string{"Fix failing tests"},
	})
	tc.Errors = append(tc.Errors, models.TaskError{Kind: "Timeout", Message: "step 1 failed: agent invocation timed out"})

	prompt := BuildPlanPrompt(tc)

	for _, want := range []string{
		"Task ID: task-7",
		"Title: Add health endpoint",
		"Expose /healthz",
		"- return 200",
		"- GET /healthz returns ok",
		"Iteration: 2",
		"Reasoning: Continuing: quality score 40.0",
		"Steps failed: 1 of 2",
		"Score: 40.0",
		"- test gate failed",
		"- Fix failing tests",
		"[Timeout] step 1 failed",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPlanPrompt_FirstIteration(t *testing.T) {
	prompt := BuildPlanPrompt(models.NewTaskContext(models.Task{ID: "t", Title: "T"}))
	if !strings.Contains(prompt, "Iteration: 1") {
		t.Errorf("expected first iteration, got:\n%s", prompt)
	}
	if strings.Contains(prompt, "Previous iteration") || strings.Contains(prompt, "Recent errors") {
		t.Errorf("first prompt should have no history:\n%s", prompt)
	}
}
