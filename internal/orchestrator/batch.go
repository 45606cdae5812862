package orchestrator

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// BatchResult groups task IDs by how a batch run ended for them.
type BatchResult struct {
	Completed []string
	Failed    []string
	Escalated []string
	Cancelled []string
	// Blocked tasks were never submitted because a dependency did not complete.
	Blocked []string
}

// Succeeded reports whether every task in the batch completed.
func (r *BatchResult) Succeeded() bool {
	return len(r.Failed) == 0 && len(r.Escalated) == 0 && len(r.Cancelled) == 0 && len(r.Blocked) == 0
}

// BatchRunner submits a set of tasks to a Scheduler in dependency order.
// A task is submitted only after all of its dependencies have completed.
type BatchRunner struct {
	scheduler *Scheduler
	logger    *logging.Logger
}

// NewBatchRunner creates a BatchRunner.
func NewBatchRunner(scheduler *Scheduler, logger *logging.Logger) *BatchRunner {
	return &BatchRunner{scheduler: scheduler, logger: logger}
}

// Run submits tasks wave by wave and waits until no more can make progress.
// Dependencies outside the batch must already be completed in the scheduler.
func (b *BatchRunner) Run(ctx context.Context, tasks []models.Task) (*BatchResult, error) {
	inBatch := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		inBatch[t.ID] = true
	}

	// Dependencies already completed outside the batch do not gate anything.
	nodes := make([]models.Task, len(tasks))
	for i, t := range tasks {
		nodes[i] = t.Clone()
		nodes[i].Dependencies = nil
		for _, dep := range t.Dependencies {
			if !inBatch[dep] {
				if status, ok := b.scheduler.registry.StatusOf(dep); ok && status == models.TaskStatusCompleted {
					continue
				}
			}
			nodes[i].Dependencies = append(nodes[i].Dependencies, dep)
		}
	}

	g := graph.New()
	g.SetLogger(b.logger)
	if err := g.Build(nodes); err != nil {
		return nil, fmt.Errorf("building task graph: %w", err)
	}

	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	submitted := make(map[string]bool, len(tasks))
	for {
		var wave []string
		for _, id := range g.GetReady() {
			if !submitted[id] {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			break
		}

		for _, id := range wave {
			if err := b.scheduler.Submit(byID[id]); err != nil {
				return nil, fmt.Errorf("submitting task %s: %w", id, err)
			}
			submitted[id] = true
		}
		b.logger.Debug("batch wave submitted", "tasks", wave)

		if err := b.scheduler.WaitIdle(ctx); err != nil {
			return nil, fmt.Errorf("waiting for tasks: %w", err)
		}

		for _, id := range wave {
			if status, ok := b.scheduler.registry.StatusOf(id); ok && status == models.TaskStatusCompleted {
				g.MarkComplete(id)
			}
		}
	}

	result := &BatchResult{}
	for _, id := range g.IDs() {
		if !submitted[id] {
			result.Blocked = append(result.Blocked, id)
			continue
		}
		status, _ := b.scheduler.registry.StatusOf(id)
		switch status {
		case models.TaskStatusCompleted:
			result.Completed = append(result.Completed, id)
		case models.TaskStatusEscalated:
			result.Escalated = append(result.Escalated, id)
		case models.TaskStatusCancelled:
			result.Cancelled = append(result.Cancelled, id)
		default:
			result.Failed = append(result.Failed, id)
		}
	}

	b.logger.Info("batch finished",
		"completed", len(result.Completed),
		"failed", len(result.Failed),
		"escalated", len(result.Escalated),
		"cancelled", len(result.Cancelled),
		"blocked", len(result.Blocked))
	return result, nil
}
