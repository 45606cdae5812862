// Package taskfile loads task definitions from YAML files.
//
// A task file lists tasks under a top-level "tasks" key:
//
//	tasks:
//	  - id: add-health
//	    title: Add a health endpoint
//	    description: Expose GET /healthz returning 200.
//	    acceptance_criteria:
//	      - GET /healthz returns ok
//	    priority: high
//	    estimated_duration: 30m
//	  - title: Document the endpoint
//	    dependencies: [add-health]
//
// Tasks without an id get a generated UUID. Priority defaults to medium.
package taskfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// ErrInvalid is returned for task files that parse but describe invalid tasks.
var ErrInvalid = errors.New("invalid task file")

// File is the on-disk layout of a task file.
type File struct {
	Tasks []Spec `yaml:"tasks"`
}

// Spec is one task as written in a task file.
type Spec struct {
	ID                 string   `yaml:"id,omitempty"`
	Title              string   `yaml:"title"`
	Description        string   `yaml:"description,omitempty"`
	Requirements       []string `yaml:"requirements,omitempty"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria,omitempty"`
	Priority           string   `yaml:"priority,omitempty"`
	EstimatedDuration  string   `yaml:"estimated_duration,omitempty"`
	Dependencies       []string `yaml:"dependencies,omitempty"`
}

// Load reads and parses the task file at path.
func Load(path string) ([]models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	tasks, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

// Parse decodes task definitions from YAML. Unknown keys are rejected.
func Parse(data []byte) ([]models.Task, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks defined", ErrInvalid)
	}

	tasks := make([]models.Task, 0, len(f.Tasks))
	seen := make(map[string]int, len(f.Tasks))
	for i, spec := range f.Tasks {
		task, err := spec.toTask()
		if err != nil {
			return nil, fmt.Errorf("%w: task %d: %v", ErrInvalid, i+1, err)
		}
		if prev, dup := seen[task.ID]; dup {
			return nil, fmt.Errorf("%w: task %d: id %q already used by task %d", ErrInvalid, i+1, task.ID, prev)
		}
		seen[task.ID] = i + 1
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s Spec) toTask() (models.Task, error) {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		return models.Task{}, errors.New("title is required")
	}

	id := strings.TrimSpace(s.ID)
	if id == "" {
		id = uuid.NewString()
	}

	priority := models.PriorityMedium
	if s.Priority != "" {
		priority = models.Priority(strings.ToLower(strings.TrimSpace(s.Priority)))
		if !priority.Valid() {
			return models.Task{}, fmt.Errorf("unknown priority %q", s.Priority)
		}
	}

	var estimate time.Duration
	if s.EstimatedDuration != "" {
		d, err := time.ParseDuration(s.EstimatedDuration)
		if err != nil {
			return models.Task{}, fmt.Errorf("estimated_duration: %w", err)
		}
		if d < 0 {
			return models.Task{}, fmt.Errorf("estimated_duration %q is negative", s.EstimatedDuration)
		}
		estimate = d
	}

	for _, dep := range s.Dependencies {
		if dep == id {
			return models.Task{}, fmt.Errorf("task %q depends on itself", id)
		}
	}

	return models.Task{
		ID:                 id,
		Title:              title,
		Description:        strings.TrimSpace(s.Description),
		Requirements:       nonEmpty(s.Requirements),
		AcceptanceCriteria: nonEmpty(s.AcceptanceCriteria),
		Priority:           priority,
		EstimatedDuration:  estimate,
		Dependencies:       nonEmpty(s.Dependencies),
	}, nil
}

// Marshal encodes tasks in task file layout.
func Marshal(tasks []models.Task) ([]byte, error) {
	f := File{Tasks: make([]Spec, len(tasks))}
	for i, t := range tasks {
		spec := Spec{
			ID:                 t.ID,
			Title:              t.Title,
			Description:        t.Description,
			Requirements:       t.Requirements,
			AcceptanceCriteria: t.AcceptanceCriteria,
			Priority:           string(t.Priority),
			Dependencies:       t.Dependencies,
		}
		if t.EstimatedDuration > 0 {
			spec.EstimatedDuration = t.EstimatedDuration.String()
		}
		f.Tasks[i] = spec
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode task file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode task file: %w", err)
	}
	return buf.Bytes(), nil
}

// Sample returns a starter task file used by `taskpilot init`.
func Sample() []models.Task {
	return []models.Task{
		{
			ID:                 "add-health-endpoint",
			Title:              "Add a health endpoint",
			Description:        "Expose GET /healthz that returns 200 with body \"ok\".",
			AcceptanceCriteria: []string{"GET /healthz returns 200", "a test covers the endpoint"},
			Priority:           models.PriorityHigh,
			EstimatedDuration:  30 * time.Minute,
		},
		{
			ID:                 "document-health-endpoint",
			Title:              "Document the health endpoint",
			AcceptanceCriteria: []string{"README lists /healthz"},
			Priority:           models.PriorityLow,
			Dependencies:       []string{"add-health-endpoint"},
		},
	}
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
