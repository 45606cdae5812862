package orchestrator

import (
	"sync"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Registry maps task IDs to their lifecycles. Callers outside the engine only
// ever see deep copies of task contexts.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]*Lifecycle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Lifecycle)}
}

// Add registers lc. It returns ErrDuplicateTask if the ID is taken.
func (r *Registry) Add(lc *Lifecycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[lc.ID()]; exists {
		return ErrDuplicateTask
	}
	r.tasks[lc.ID()] = lc
	r.order = append(r.order, lc.ID())
	return nil
}

// get returns the lifecycle for id.
func (r *Registry) get(id string) (*Lifecycle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lc, ok := r.tasks[id]
	return lc, ok
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	_, ok := r.get(id)
	return ok
}

// Status returns a copy of the task context for id.
func (r *Registry) Status(id string) (*models.TaskContext, bool) {
	lc, ok := r.get(id)
	if !ok {
		return nil, false
	}
	return lc.Snapshot(), true
}

// StatusOf returns the current status for id.
func (r *Registry) StatusOf(id string) (models.TaskStatus, bool) {
	lc, ok := r.get(id)
	if !ok {
		return "", false
	}
	return lc.Status(), true
}

// All returns copies of every task context in submission order.
func (r *Registry) All() []*models.TaskContext {
	r.mu.RLock()
	lcs := make([]*Lifecycle, 0, len(r.order))
	for _, id := range r.order {
		lcs = append(lcs, r.tasks[id])
	}
	r.mu.RUnlock()

	out := make([]*models.TaskContext, len(lcs))
	for i, lc := range lcs {
		out[i] = lc.Snapshot()
	}
	return out
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
