package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// ErrNotFound is returned when no record exists for a task ID.
var ErrNotFound = errors.New("task record not found")

// TaskRecord is one row of task history.
type TaskRecord struct {
	ID            string
	Title         string
	Priority      models.Priority
	Status        models.TaskStatus
	Iterations    int
	Progress      float64
	QualityScore  *float64
	EstimatedCost float64
	StartedAt     *time.Time
	EndedAt       *time.Time
	RecordedAt    time.Time
	// Context is the full task context as recorded. It is only populated by GetTask.
	Context *models.TaskContext
}

// IterationRecord is the summary row stored for each iteration.
type IterationRecord struct {
	Number      int
	Decision    models.Decision
	Confidence  float64
	Reasoning   string
	Score       *float64
	StepsTotal  int
	StepsFailed int
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// ListOptions filters ListTasks.
type ListOptions struct {
	// Status restricts results to one status when set.
	Status models.TaskStatus
	// Limit caps the number of rows; zero means no limit.
	Limit int
}

// SaveContext records tc, replacing any earlier record for the same task.
func (db *DB) SaveContext(tc *models.TaskContext) error {
	if tc == nil || tc.Task.ID == "" {
		return fmt.Errorf("save context: missing task id")
	}
	payload, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, title, priority, status, iterations, progress, quality_score,
				estimated_cost, started_at, ended_at, recorded_at, context_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				priority = excluded.priority,
				status = excluded.status,
				iterations = excluded.iterations,
				progress = excluded.progress,
				quality_score = excluded.quality_score,
				estimated_cost = excluded.estimated_cost,
				started_at = excluded.started_at,
				ended_at = excluded.ended_at,
				recorded_at = excluded.recorded_at,
				context_json = excluded.context_json
		`, tc.Task.ID, tc.Task.Title, string(tc.Task.Priority), string(tc.Status),
			len(tc.Iterations), tc.Progress, nullableScore(tc.Metrics.QualityScore),
			tc.Metrics.EstimatedCost, nullableTime(tc.StartTime), nullableTime(tc.EndTime),
			formatTime(time.Now()), string(payload))
		if err != nil {
			return fmt.Errorf("save task %s: %w", tc.Task.ID, err)
		}

		if _, err := tx.Exec(`DELETE FROM iterations WHERE task_id = ?`, tc.Task.ID); err != nil {
			return fmt.Errorf("clear iterations: %w", err)
		}
		for _, it := range tc.Iterations {
			failed, total := it.StepCounts()
			var score *float64
			if it.Evaluation != nil {
				s := it.Evaluation.OverallScore
				score = &s
			}
			_, err := tx.Exec(`
				INSERT INTO iterations (task_id, number, decision, confidence, reasoning, score,
					steps_total, steps_failed, started_at, ended_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, tc.Task.ID, it.Number, string(it.Decision.Decision), it.Decision.Confidence,
				it.Decision.Reasoning, nullableScore(score), total, failed,
				formatTime(it.StartTime), formatTime(it.EndTime))
			if err != nil {
				return fmt.Errorf("save iteration %d: %w", it.Number, err)
			}
		}

		if _, err := tx.Exec(`DELETE FROM task_errors WHERE task_id = ?`, tc.Task.ID); err != nil {
			return fmt.Errorf("clear errors: %w", err)
		}
		for _, e := range tc.Errors {
			_, err := tx.Exec(`
				INSERT INTO task_errors (task_id, occurred_at, type, severity, kind, message, details, iteration)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, tc.Task.ID, formatTime(e.Timestamp), string(e.Type), string(e.Severity),
				e.Kind, e.Message, e.Details, e.Iteration)
			if err != nil {
				return fmt.Errorf("save error: %w", err)
			}
		}
		return nil
	})
}

const taskColumns = `id, title, priority, status, iterations, progress, quality_score,
	estimated_cost, started_at, ended_at, recorded_at`

// GetTask returns the record for id, including the full context.
func (db *DB) GetTask(id string) (*TaskRecord, error) {
	row := db.QueryRow(`SELECT `+taskColumns+`, context_json FROM tasks WHERE id = ?`, id)

	var payload string
	rec, err := scanTask(row, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	var tc models.TaskContext
	if err := json.Unmarshal([]byte(payload), &tc); err != nil {
		return nil, fmt.Errorf("decode context for %s: %w", id, err)
	}
	rec.Context = &tc
	return rec, nil
}

// ListTasks returns task records, most recently recorded first.
func (db *DB) ListTasks(opts ListOptions) ([]TaskRecord, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + taskColumns + ` FROM tasks`)
	if opts.Status != "" {
		query.WriteString(` WHERE status = ?`)
		args = append(args, string(opts.Status))
	}
	query.WriteString(` ORDER BY recorded_at DESC, id`)
	if opts.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	rows, err := db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ListIterations returns the iteration summaries for taskID in order.
func (db *DB) ListIterations(taskID string) ([]IterationRecord, error) {
	rows, err := db.Query(`
		SELECT number, decision, confidence, reasoning, score, steps_total, steps_failed, started_at, ended_at
		FROM iterations WHERE task_id = ? ORDER BY number
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var records []IterationRecord
	for rows.Next() {
		var (
			r                 IterationRecord
			reasoning         sql.NullString
			score             sql.NullFloat64
			started, finished sql.NullString
		)
		if err := rows.Scan(&r.Number, &r.Decision, &r.Confidence, &reasoning, &score,
			&r.StepsTotal, &r.StepsFailed, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		r.Reasoning = reasoning.String
		if score.Valid {
			s := score.Float64
			r.Score = &s
		}
		r.StartedAt = parseNullableTime(started)
		r.EndedAt = parseNullableTime(finished)
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListErrors returns the recorded errors for taskID in order.
func (db *DB) ListErrors(taskID string) ([]models.TaskError, error) {
	rows, err := db.Query(`
		SELECT occurred_at, type, severity, kind, message, details, iteration
		FROM task_errors WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	var out []models.TaskError
	for rows.Next() {
		var (
			e        models.TaskError
			occurred string
			details  sql.NullString
		)
		if err := rows.Scan(&occurred, &e.Type, &e.Severity, &e.Kind, &e.Message, &details, &e.Iteration); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		e.Timestamp, _ = parseTime(occurred)
		e.Details = details.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkInterrupted moves every recorded task that is not in a terminal status
// to failed. Such rows belong to a process that exited mid-run.
// Returns the IDs that were updated.
func (db *DB) MarkInterrupted() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM tasks WHERE status NOT IN (?, ?, ?, ?)`,
		string(models.TaskStatusCompleted), string(models.TaskStatusFailed),
		string(models.TaskStatusCancelled), string(models.TaskStatusEscalated))
	if err != nil {
		return nil, fmt.Errorf("find interrupted tasks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan interrupted task: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		rec, err := db.GetTask(id)
		if err != nil {
			return nil, err
		}
		tc := rec.Context
		now := time.Now()
		if tc.EndTime == nil {
			tc.EndTime = &now
		}
		tc.Status = models.TaskStatusFailed
		tc.Errors = append(tc.Errors, models.TaskError{
			Timestamp: now,
			Type:      models.ErrorTypeSystem,
			Severity:  models.SeverityHigh,
			Kind:      models.ErrorKindUnclassified,
			Message:   "run interrupted before the task finished",
		})
		if err := db.SaveContext(tc); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask scans the taskColumns, plus any extra destinations.
func scanTask(row rowScanner, extra ...any) (*TaskRecord, error) {
	var (
		rec               TaskRecord
		priority          sql.NullString
		score             sql.NullFloat64
		started, finished sql.NullString
		recorded          string
	)
	dest := []any{&rec.ID, &rec.Title, &priority, &rec.Status, &rec.Iterations, &rec.Progress,
		&score, &rec.EstimatedCost, &started, &finished, &recorded}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	rec.Priority = models.Priority(priority.String)
	if score.Valid {
		s := score.Float64
		rec.QualityScore = &s
	}
	rec.StartedAt = parseNullableTime(started)
	rec.EndedAt = parseNullableTime(finished)
	rec.RecordedAt, _ = parseTime(recorded)
	return &rec, nil
}

func nullableScore(s *float64) any {
	if s == nil {
		return nil
	}
	return *s
}
