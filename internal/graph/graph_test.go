package graph

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func task(id string, deps ...string) models.Task {
	return models.Task{ID: id, Title: "Task " + id, Dependencies: deps}
}

func TestNew(t *testing.T) {
	g := New()
	if g == nil {
		t.Fatal("expected non-nil graph")
	}
	if g.Size() != 0 {
		t.Errorf("expected empty graph, got size %d", g.Size())
	}
}

func TestBuildWithDependencies(t *testing.T) {
	g := New()
	err := g.Build([]models.Task{
		task("task-1"),
		task("task-2", "task-1"),
		task("task-3", "task-1", "task-2"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("expected size 3, got %d", g.Size())
	}
	if deps := g.GetDependencies("task-3"); len(deps) != 2 {
		t.Errorf("expected 2 dependencies for task-3, got %v", deps)
	}
	if dependents := g.GetDependents("task-1"); !reflect.DeepEqual(dependents, []string{"task-2", "task-3"}) {
		t.Errorf("unexpected dependents of task-1: %v", dependents)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		tasks []models.Task
		want  error
	}{
		{"unknown dependency", []models.Task{task("a", "missing")}, ErrUnknownDependency},
		{"duplicate id", []models.Task{task("a"), task("a")}, ErrDuplicateID},
		{"self loop", []models.Task{task("a", "a")}, ErrCycleDetected},
		{"two node cycle", []models.Task{task("a", "b"), task("b", "a")}, ErrCycleDetected},
		{"three node cycle", []models.Task{task("a", "c"), task("b", "a"), task("c", "b")}, ErrCycleDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Build(tt.tasks)
			if !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTopologicalSortDiamond(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{
		task("d", "b", "c"),
		task("b", "a"),
		task("c", "a"),
		task("a"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	if len(pos) != 4 {
		t.Fatalf("expected 4 ids, got %v", order)
	}
	if pos["a"] > pos["b"] || pos["a"] > pos["c"] || pos["b"] > pos["d"] || pos["c"] > pos["d"] {
		t.Errorf("dependencies out of order: %v", order)
	}
}

func TestGetReadyFollowsInsertionOrder(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{
		task("z"),
		task("y", "z"),
		task("x"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := g.GetReady(); !reflect.DeepEqual(got, []string{"z", "x"}) {
		t.Errorf("GetReady() = %v, want [z x]", got)
	}

	g.MarkComplete("z")
	if got := g.GetReady(); !reflect.DeepEqual(got, []string{"y", "x"}) {
		t.Errorf("GetReady() after z = %v, want [y x]", got)
	}

	g.MarkComplete("x")
	g.MarkComplete("y")
	if got := g.GetReady(); len(got) != 0 {
		t.Errorf("GetReady() with all complete = %v, want empty", got)
	}
	if got := g.GetCompletedIDs(); !reflect.DeepEqual(got, []string{"z", "y", "x"}) {
		t.Errorf("GetCompletedIDs() = %v", got)
	}
}

func TestGetTransitiveDependents(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{
		task("a"),
		task("b", "a"),
		task("c", "b"),
		task("d"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := g.GetTransitiveDependents("a"); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("GetTransitiveDependents(a) = %v, want [b c]", got)
	}
	if got := g.GetTransitiveDependents("d"); len(got) != 0 {
		t.Errorf("GetTransitiveDependents(d) = %v, want empty", got)
	}
}

func TestGetTaskReturnsCopy(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{task("a"), task("b", "a")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := g.GetTask("b")
	if !ok {
		t.Fatal("expected task b")
	}
	got.Dependencies[0] = "changed"

	again, _ := g.GetTask("b")
	if again.Dependencies[0] != "a" {
		t.Error("GetTask exposed internal state")
	}

	if _, ok := g.GetTask("missing"); ok {
		t.Error("expected missing task to be absent")
	}
}

func TestEmptyGraph(t *testing.T) {
	g := New()
	if err := g.Build(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.HasCycle() {
		t.Error("empty graph should not have a cycle")
	}
	order, err := g.TopologicalSort()
	if err != nil || len(order) != 0 {
		t.Errorf("TopologicalSort() = %v, %v", order, err)
	}
	if len(g.GetReady()) != 0 {
		t.Error("empty graph should have no ready tasks")
	}
}

func TestBuildCycleNamesPath(t *testing.T) {
	err := New().Build([]models.Task{task("a", "c"), task("b", "a"), task("c", "b")})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Build() error = %v, want ErrCycleDetected", err)
	}
	if !strings.Contains(err.Error(), "a -> c -> b -> a") {
		t.Errorf("cycle path missing from %q", err)
	}
}

func TestWaves(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{
		task("d", "b", "c"),
		task("b", "a"),
		task("c", "a"),
		task("a"),
		task("e"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waves, err := g.Waves()
	if err != nil {
		t.Fatalf("Waves() error = %v", err)
	}
	want := [][]string{{"a", "e"}, {"b", "c"}, {"d"}}
	if !reflect.DeepEqual(waves, want) {
		t.Errorf("Waves() = %v, want %v", waves, want)
	}
}
