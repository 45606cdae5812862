package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/internal/orchestrator"
	"github.com/ShayCichocki/taskpilot/internal/taskfile"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m05s"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 30*time.Minute, "2h30m"},
		{50 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"collapses whitespace", "a\n  b\tc", 10, "a b c"},
		{"truncated", "abcdefghij", 6, "abc..."},
		{"tiny limit", "abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateText(tt.in, tt.n); got != tt.want {
				t.Errorf("truncateText(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func finished(id string, status models.TaskStatus, cost float64) *models.TaskContext {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	score := 88.0
	tc := models.NewTaskContext(models.Task{ID: id, Title: "Task " + id, Priority: models.PriorityMedium})
	tc.Status = status
	tc.StartTime = &start
	tc.EndTime = &end
	tc.Metrics.Iterations = 2
	tc.Metrics.QualityScore = &score
	tc.Metrics.EstimatedCost = cost
	return tc
}

func TestRenderSummary(t *testing.T) {
	out := renderSummary([]*models.TaskContext{
		finished("a", models.TaskStatusCompleted, 0.20),
		finished("b", models.TaskStatusFailed, 0.15),
	}, []string{"c"})

	for _, want := range []string{"Run summary", "a", "b", "completed", "failed", "1m30s", "88", "Blocked", "c"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "1 completed, 1 failed, 0 escalated, 0 cancelled, 1 blocked. Estimated cost $0.35") {
		t.Errorf("unexpected totals line:\n%s", out)
	}
}

func TestRenderTaskDetail(t *testing.T) {
	tc := finished("a", models.TaskStatusEscalated, 0.1)
	tc.Iterations = []models.TaskIteration{{
		Number:   1,
		Decision: models.ContinuationDecision{Decision: models.DecisionEscalate, Confidence: 0.8, Reasoning: "quality stagnated"},
	}}
	tc.Errors = []models.TaskError{{
		Timestamp: time.Now(),
		Type:      models.ErrorTypeExecution,
		Severity:  models.SeverityHigh,
		Kind:      models.ErrorKindTimeout,
		Message:   "agent timed out",
	}}

	out := renderTaskDetail(tc)
	for _, want := range []string{"Task a", "escalated", "quality stagnated", "agent timed out", "Timeout", "Iterations", "Errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, false)

	p.Handle(orchestrator.Event{Type: orchestrator.EventTaskQueued, TaskID: "a"})
	p.Handle(orchestrator.Event{Type: orchestrator.EventTaskStarted, TaskID: "a", TaskTitle: "Add endpoint"})
	p.Handle(orchestrator.Event{Type: orchestrator.EventStepOutput, TaskID: "a", Message: "editing main.go"})
	p.Handle(orchestrator.Event{Type: orchestrator.EventIterationCompleted, TaskID: "a", Iteration: 1, Decision: models.DecisionContinue, Confidence: 0.6})
	p.Handle(orchestrator.Event{Type: orchestrator.EventTaskCompleted, TaskID: "a"})

	out := buf.String()
	if strings.Contains(out, "queued") || strings.Contains(out, "editing main.go") {
		t.Errorf("quiet printer showed verbose output:\n%s", out)
	}
	for _, want := range []string{"a started: Add endpoint", "iteration 1: continue (0.60)", "a completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	verbose := newProgressPrinter(&buf, true)
	verbose.Handle(orchestrator.Event{Type: orchestrator.EventStepOutput, TaskID: "a", Message: "editing main.go"})
	if !strings.Contains(buf.String(), "editing main.go") {
		t.Errorf("verbose printer dropped step output: %q", buf.String())
	}
}

func TestConfigKeys(t *testing.T) {
	c := config.Default()

	if got, err := getConfigValue(c, "engine.max_iterations"); err != nil || got != "10" {
		t.Errorf("engine.max_iterations = %q, %v", got, err)
	}
	if err := setConfigValue(c, "ENGINE.MAX_DURATION", "45m"); err != nil {
		t.Fatalf("set max_duration: %v", err)
	}
	if c.Engine.MaxDuration != 45*time.Minute {
		t.Errorf("MaxDuration = %v", c.Engine.MaxDuration)
	}
	if err := setConfigValue(c, "events.bus", "nats"); err != nil || c.Events.Bus != "nats" {
		t.Errorf("events.bus = %q, %v", c.Events.Bus, err)
	}
	if err := setConfigValue(c, "quality.lint", "false"); err != nil || c.Quality.Lint {
		t.Errorf("quality.lint = %v, %v", c.Quality.Lint, err)
	}
	if err := setConfigValue(c, "engine.quality_threshold", "90.5"); err != nil || c.Engine.QualityThreshold != 90.5 {
		t.Errorf("quality_threshold = %v, %v", c.Engine.QualityThreshold, err)
	}

	for _, bad := range [][2]string{
		{"engine.max_iterations", "many"},
		{"agent.timeout", "soon"},
		{"quality.test", "maybe"},
		{"nope.key", "1"},
	} {
		if err := setConfigValue(c, bad[0], bad[1]); err == nil {
			t.Errorf("setConfigValue(%q, %q) should fail", bad[0], bad[1])
		}
	}
	if _, err := getConfigValue(c, "nope.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetConfigKey_RejectsZeroMaxIterations(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	var out bytes.Buffer
	err := setConfigKey(&out, config.Default(), "engine.max_iterations", "0")
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("setConfigKey error = %v, want ErrInvalidConfig", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "taskpilot", "config.yaml")); !os.IsNotExist(statErr) {
		t.Errorf("invalid config was saved: %v", statErr)
	}
}

func TestDisplayAllConfig_MasksAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")
	var buf bytes.Buffer
	displayAllConfig(&buf, config.Default())

	out := buf.String()
	if strings.Contains(out, "abcdefghijklmnop") {
		t.Error("API key printed in clear")
	}
	if !strings.Contains(out, "llm.api_key: sk-ant-...mnop (environment)") {
		t.Errorf("unexpected api key line:\n%s", out)
	}
	if !strings.Contains(out, "signals.dir: ") {
		t.Errorf("missing signals.dir:\n%s", out)
	}
}

func TestLLMConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env-123456")
	c := config.Default()
	c.LLM.Model = "claude-test"
	c.LLM.Bedrock.Enabled = true
	c.LLM.Bedrock.Region = "us-west-2"

	got := llmConfig(c)
	if got.APIKey != "sk-ant-from-env-123456" {
		t.Errorf("APIKey = %q", got.APIKey)
	}
	if got.Model != "claude-test" || !got.UseBedrock || got.AWSRegion != "us-west-2" {
		t.Errorf("unexpected llm config %+v", got)
	}
}

func TestNewEvaluator_AllGatesOff(t *testing.T) {
	c := config.Default()
	c.Quality.Test, c.Quality.Build, c.Quality.Lint, c.Quality.Typecheck = false, false, false, false
	if ev := newEvaluator(c, t.TempDir(), logging.NopLogger()); ev != nil {
		t.Errorf("expected nil evaluator, got %T", ev)
	}

	c.Quality.Build = true
	if ev := newEvaluator(c, t.TempDir(), logging.NopLogger()); ev == nil {
		t.Error("expected evaluator with build gate on")
	}
}

func TestInitProject(t *testing.T) {
	initSkipAgentCheck = true
	initTaskFileName = "tasks.yaml"
	initForce = false
	t.Cleanup(func() { initSkipAgentCheck = false })

	dir := filepath.Join(t.TempDir(), "proj")
	var buf bytes.Buffer
	if err := initProject(&buf, dir); err != nil {
		t.Fatalf("initProject failed: %v\n%s", err, buf.String())
	}

	loaded, err := config.LoadFromPath(filepath.Join(dir, config.ProjectConfigName))
	if err != nil {
		t.Fatalf("project config unreadable: %v", err)
	}
	if loaded.Engine.MaxIterations != config.Default().Engine.MaxIterations {
		t.Errorf("MaxIterations = %d", loaded.Engine.MaxIterations)
	}

	tasks, err := taskfile.Load(filepath.Join(dir, "tasks.yaml"))
	if err != nil {
		t.Fatalf("sample task file invalid: %v", err)
	}
	if len(tasks) != len(taskfile.Sample()) {
		t.Errorf("expected %d sample tasks, got %d", len(taskfile.Sample()), len(tasks))
	}

	for _, sub := range []string{"logs", "signals"} {
		if _, err := os.Stat(filepath.Join(dir, ".taskpilot", sub)); err != nil {
			t.Errorf("missing .taskpilot/%s: %v", sub, err)
		}
	}

	gitignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(gitignore), ".taskpilot/history.db*") {
		t.Errorf(".gitignore missing history entry:\n%s", gitignore)
	}

	// A second run keeps edited files.
	taskPath := filepath.Join(dir, "tasks.yaml")
	if err := os.WriteFile(taskPath, []byte("tasks:\n  - {id: mine, title: Mine}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := initProject(&buf, dir); err != nil {
		t.Fatalf("second initProject failed: %v", err)
	}
	if !strings.Contains(buf.String(), "already exists") {
		t.Errorf("expected already-exists notice:\n%s", buf.String())
	}
	data, _ := os.ReadFile(taskPath)
	if !strings.Contains(string(data), "mine") {
		t.Error("existing task file was overwritten")
	}
	gitignore2, _ := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if string(gitignore2) != string(gitignore) {
		t.Error(".gitignore entries duplicated")
	}
}

func TestPrintRunOrder(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	tasks := []models.Task{
		{ID: "docs", Title: "Write docs", Dependencies: []string{"impl"}},
		{ID: "impl", Title: "Implement"},
	}
	if err := printRunOrder(cmd, tasks); err != nil {
		t.Fatalf("printRunOrder failed: %v", err)
	}
	out := buf.String()
	if strings.Index(out, "impl") > strings.Index(out, " 2. docs") {
		t.Errorf("dependency printed after dependent:\n%s", out)
	}
	if !strings.Contains(out, " 1. impl") || !strings.Contains(out, " 2. docs") {
		t.Errorf("unexpected order:\n%s", out)
	}

	cyclic := []models.Task{
		{ID: "a", Title: "A", Dependencies: []string{"b"}},
		{ID: "b", Title: "B", Dependencies: []string{"a"}},
	}
	if err := printRunOrder(cmd, cyclic); err == nil {
		t.Error("expected cycle error")
	}
}

func TestFormatEnvelope(t *testing.T) {
	line := formatEnvelope(bus.Envelope{
		Type:      "iterationCompleted",
		TaskID:    "a",
		Status:    "executing",
		Iteration: 3,
		Decision:  "continue",
		Message:   "more work needed",
		Timestamp: time.Now(),
	})
	for _, want := range []string{"iterationCompleted", "a [executing]", "iteration 3", "continue", ": more work needed"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}
