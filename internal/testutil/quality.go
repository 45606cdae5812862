package testutil

import (
	"context"
	"sync"

	"github.com/ShayCichocki/taskpilot/internal/quality"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Evaluation is one scripted evaluator answer.
type Evaluation struct {
	Result *models.EvaluationResult
	Err    error
}

// FakeEvaluator replays scripted evaluations. Once the script is exhausted
// it repeats the last entry; with no script it returns a zero score.
type FakeEvaluator struct {
	mu     sync.Mutex
	script []Evaluation
	last   Evaluation
	calls  int
}

var _ quality.Evaluator = (*FakeEvaluator)(nil)

// NewFakeEvaluator creates a FakeEvaluator from scripted answers.
func NewFakeEvaluator(script ...Evaluation) *FakeEvaluator {
	return &FakeEvaluator{
		script: script,
		last:   Evaluation{Result: &models.EvaluationResult{}},
	}
}

// NewScoreEvaluator creates a FakeEvaluator returning the given overall scores in order.
func NewScoreEvaluator(scores ...float64) *FakeEvaluator {
	script := make([]Evaluation, len(scores))
	for i, s := range scores {
		script[i] = Evaluation{Result: &models.EvaluationResult{OverallScore: s}}
	}
	return NewFakeEvaluator(script...)
}

// Evaluate returns the next scripted answer.
func (f *FakeEvaluator) Evaluate(ctx context.Context) (*models.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.script) > 0 {
		f.last = f.script[0]
		f.script = f.script[1:]
	}
	if f.last.Err != nil {
		return nil, f.last.Err
	}
	if f.last.Result == nil {
		return &models.EvaluationResult{}, nil
	}
	result := f.last.Result.Clone()
	return &result, nil
}

// CallCount returns the number of Evaluate calls.
func (f *FakeEvaluator) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
