// Package graph provides a dependency graph for batch task submission.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	// ErrCycleDetected indicates a circular dependency was found in the task graph.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrUnknownDependency indicates a task depends on an ID that is not in the graph.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrDuplicateID indicates two tasks share an ID.
	ErrDuplicateID = errors.New("duplicate task id")
)

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
// Query results follow the order tasks were added.
type DependencyGraph struct {
	mu sync.RWMutex
	// order holds task IDs in insertion order.
	order []string
	// nodes maps task ID to the task itself.
	nodes map[string]models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
	logger    *logging.Logger
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// SetLogger sets the logger used for debug output.
func (g *DependencyGraph) SetLogger(logger *logging.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logger = logger
}

// Build constructs the dependency graph from a slice of tasks.
// Returns an error if a cycle is detected, an ID repeats, or dependencies
// reference unknown tasks.
func (g *DependencyGraph) Build(tasks []models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Debug("building graph", "tasks", len(tasks))

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateID, task.ID)
		}
		g.order = append(g.order, task.ID)
		g.nodes[task.ID] = task.Clone()
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from Dependencies.
	for _, task := range tasks {
		for _, depID := range task.Dependencies {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if cycle := g.findCycleLocked(); cycle != nil {
		return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
	}

	g.logger.Debug("graph built", "nodes", len(g.nodes))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycleLocked() != nil
}

// findCycleLocked returns one dependency cycle as a path that starts and
// ends on the same ID, or nil.
func (g *DependencyGraph) findCycleLocked() []string {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = onPath
		path = append(path, id)
		for _, depID := range g.edges[id] {
			switch state[depID] {
			case onPath:
				for i, p := range path {
					if p == depID {
						return append(append([]string(nil), path[i:]...), depID)
					}
				}
			case unvisited:
				if cycle := visit(depID); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.order {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Waves groups task IDs into rounds: every task in a wave depends only on
// tasks in earlier waves. Within a wave, IDs keep insertion order.
func (g *DependencyGraph) Waves() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	placed := make(map[string]bool, len(g.nodes))
	var waves [][]string
	for len(placed) < len(g.order) {
		var wave []string
		for _, id := range g.order {
			if placed[id] {
				continue
			}
			ready := true
			for _, depID := range g.edges[id] {
				if !placed[depID] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			return nil, ErrCycleDetected
		}
		for _, id := range wave {
			placed[id] = true
		}
		waves = append(waves, wave)
	}
	return waves, nil
}

// TopologicalSort returns task IDs with every dependency ahead of its
// dependents. It is Waves flattened.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	waves, err := g.Waves()
	if err != nil {
		return nil, err
	}
	var order []string
	for _, wave := range waves {
		order = append(order, wave...)
	}
	return order, nil
}

// GetReady returns task IDs that are not completed and whose dependencies
// are all completed, in insertion order.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] {
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDepsComplete = false
				break
			}
		}

		if allDepsComplete {
			ready = append(ready, id)
		}
	}

	g.logger.Debug("ready tasks", "count", len(ready), "ids", ready)
	return ready
}

// MarkComplete marks a task as completed in the graph.
// This affects subsequent calls to GetReady.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// IsComplete reports whether a task has been marked complete.
func (g *DependencyGraph) IsComplete(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.completed[taskID]
}

// GetTask returns the task for a given ID.
func (g *DependencyGraph) GetTask(taskID string) (models.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	task, ok := g.nodes[taskID]
	if !ok {
		return models.Task{}, false
	}
	return task.Clone(), true
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// IDs returns all task IDs in insertion order.
func (g *DependencyGraph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// GetDependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// GetDependents returns the IDs of tasks that depend directly on the given task.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// GetTransitiveDependents returns every task that depends on the given task,
// directly or through other tasks, in insertion order.
func (g *DependencyGraph) GetTransitiveDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blocked := map[string]bool{taskID: true}
	changed := true
	for changed {
		changed = false
		for _, id := range g.order {
			if blocked[id] {
				continue
			}
			for _, depID := range g.edges[id] {
				if blocked[depID] {
					blocked[id] = true
					changed = true
					break
				}
			}
		}
	}

	var out []string
	for _, id := range g.order {
		if id != taskID && blocked[id] {
			out = append(out, id)
		}
	}
	return out
}

// GetCompletedIDs returns the IDs of all tasks marked as completed in the graph.
func (g *DependencyGraph) GetCompletedIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for _, id := range g.order {
		if g.completed[id] {
			ids = append(ids, id)
		}
	}
	return ids
}
