// Package quality scores the workspace after agent iterations.
//
// Evaluator is the boundary the orchestrator depends on. GateEvaluator folds
// build, test, lint and typecheck gate outcomes into a single 0-100 score.
package quality

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	// ErrAlreadyRunning is returned when Evaluate is called while an evaluation is in flight.
	ErrAlreadyRunning = errors.New("evaluation already running")
	// ErrNoApplicableGates is returned when every enabled gate was skipped,
	// so there is nothing to score.
	ErrNoApplicableGates = errors.New("no applicable quality gates")
)

// Evaluator assesses the current workspace.
type Evaluator interface {
	Evaluate(ctx context.Context) (*models.EvaluationResult, error)
}

// gateWeights are the relative weights of each gate in the overall score.
var gateWeights = map[string]float64{
	"build":     40,
	"test":      40,
	"lint":      10,
	"typecheck": 10,
}

var gateSuggestions = map[string]string{
	"build":     "Fix build errors before adding more functionality",
	"test":      "Fix failing tests",
	"lint":      "Address lint findings",
	"typecheck": "Fix type errors",
}

// GateEvaluator implements Evaluator over a GateRunner.
type GateEvaluator struct {
	runner  GateRunner
	logger  *logging.Logger
	running atomic.Bool
	now     func() time.Time
}

var _ Evaluator = (*GateEvaluator)(nil)

// NewGateEvaluator creates an evaluator over runner.
func NewGateEvaluator(runner GateRunner, logger *logging.Logger) *GateEvaluator {
	return &GateEvaluator{
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
}

// Evaluate runs the gates and scores the results. Overlapping calls fail
// with ErrAlreadyRunning.
func (e *GateEvaluator) Evaluate(ctx context.Context) (*models.EvaluationResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	outputs, err := e.runner.RunGates(ctx)
	if err != nil {
		return nil, fmt.Errorf("run quality gates: %w", err)
	}

	result := Score(outputs)
	if len(result.SubScores) == 0 {
		e.logger.Debug("evaluation skipped, no gate applies", "gates", len(outputs))
		return nil, ErrNoApplicableGates
	}
	result.Timestamp = e.now()

	e.logger.Debug("evaluation finished",
		"score", result.OverallScore,
		"issues", len(result.Issues),
		"gates", len(outputs))

	return result, nil
}

// Score folds gate outputs into an EvaluationResult. Skipped gates are left
// out and the remaining weights are renormalized.
func Score(outputs []*GateOutput) *models.EvaluationResult {
	result := &models.EvaluationResult{
		SubScores: make(map[string]float64),
	}

	var weighted, totalWeight float64
	for _, out := range outputs {
		if out == nil || out.Result == GateSkip {
			continue
		}
		weight, ok := gateWeights[out.Gate]
		if !ok {
			weight = 10
		}

		score := gateScore(out)
		result.SubScores[out.Gate] = score
		weighted += weight * score
		totalWeight += weight

		if out.Tests != nil {
			result.TestsPassed = out.Tests.Passed
			result.TestsFailed = out.Tests.Failed
			result.Coverage = out.Tests.Coverage
		}

		switch out.Result {
		case GateFail:
			result.Issues = append(result.Issues, fmt.Sprintf("%s gate failed: %s", out.Gate, firstLines(out.Output, 3)))
			if s, ok := gateSuggestions[out.Gate]; ok {
				result.Suggestions = append(result.Suggestions, s)
			}
		case GateError:
			result.Issues = append(result.Issues, fmt.Sprintf("%s gate could not run: %s", out.Gate, firstLines(out.Output, 2)))
		}
	}

	if totalWeight == 0 {
		result.Issues = append(result.Issues, "no applicable quality gates")
		return result
	}

	result.OverallScore = roundScore(weighted / totalWeight)

	if result.TestsPassed+result.TestsFailed > 0 && result.Coverage > 0 && result.Coverage < 50 {
		result.Suggestions = append(result.Suggestions,
			fmt.Sprintf("Increase test coverage (currently %.1f%%)", result.Coverage))
	}

	return result
}

// gateScore returns 0-100 for one gate. The test gate scores by pass ratio
// when test counts are known.
func gateScore(out *GateOutput) float64 {
	if out.Result == GatePass {
		return 100
	}
	if out.Tests != nil {
		total := out.Tests.Passed + out.Tests.Failed
		if total > 0 {
			return float64(out.Tests.Passed) / float64(total) * 100
		}
	}
	return 0
}

func roundScore(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, " | ")
}

// TestSummary holds counts parsed from test runner output.
type TestSummary struct {
	Passed   int
	Failed   int
	Coverage float64
}

var coverageRe = regexp.MustCompile(`coverage: ([0-9.]+)% of statements`)

// parseGoTestOutput counts "--- PASS" and "--- FAIL" lines and averages the
// per-package coverage figures from `go test -v -cover` output.
func parseGoTestOutput(output string) *TestSummary {
	summary := &TestSummary{}
	var coverages []float64

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "--- PASS"):
			summary.Passed++
		case strings.HasPrefix(trimmed, "--- FAIL"):
			summary.Failed++
		}
		if m := coverageRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				coverages = append(coverages, v)
			}
		}
	}

	if len(coverages) > 0 {
		var sum float64
		for _, c := range coverages {
			sum += c
		}
		summary.Coverage = roundScore(sum / float64(len(coverages)))
	}
	return summary
}
