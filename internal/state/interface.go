package state

import (
	"io"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// TaskWriter persists task contexts.
type TaskWriter interface {
	SaveContext(tc *models.TaskContext) error
}

// TaskReader reads recorded task history.
type TaskReader interface {
	GetTask(id string) (*TaskRecord, error)
	ListTasks(opts ListOptions) ([]TaskRecord, error)
	ListIterations(taskID string) ([]IterationRecord, error)
	ListErrors(taskID string) ([]models.TaskError, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// HistoryStore defines the interface for task history persistence.
// It composes focused sub-interfaces so the recorder can depend on
// writing alone and the CLI on reading alone.
type HistoryStore interface {
	io.Closer
	Migrator
	TaskWriter
	TaskReader
}

// Compile-time verification that DB implements all interfaces.
var (
	_ HistoryStore = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ TaskWriter   = (*DB)(nil)
	_ TaskReader   = (*DB)(nil)
)
