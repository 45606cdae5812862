package orchestrator

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Reasoning strings that callers may match on.
const (
	ReasonCriteriaMet = "All acceptance criteria have been met"
)

// Confidence values for each rule.
const (
	confidenceQuality    = 0.9
	confidenceStagnation = 0.8
	confidenceErrorRate  = 0.9
	confidenceContinue   = 0.7
)

// DecisionPolicy holds the thresholds the continuation decision applies.
type DecisionPolicy struct {
	QualityThreshold    float64
	StagnationWindow    int
	StagnationSpread    float64
	ErrorRateThreshold  float64
	SoftIterationBudget int
}

// PolicyFromConfig builds a DecisionPolicy, filling unset values with defaults.
func PolicyFromConfig(cfg config.EngineConfig) DecisionPolicy {
	def := config.Default().Engine
	p := DecisionPolicy{
		QualityThreshold:    cfg.QualityThreshold,
		StagnationWindow:    cfg.StagnationWindow,
		StagnationSpread:    cfg.StagnationSpread,
		ErrorRateThreshold:  cfg.ErrorRateThreshold,
		SoftIterationBudget: cfg.SoftIterationBudget,
	}
	if p.QualityThreshold <= 0 {
		p.QualityThreshold = def.QualityThreshold
	}
	if p.StagnationWindow < 2 {
		p.StagnationWindow = def.StagnationWindow
	}
	if p.StagnationSpread <= 0 {
		p.StagnationSpread = def.StagnationSpread
	}
	if p.ErrorRateThreshold <= 0 {
		p.ErrorRateThreshold = def.ErrorRateThreshold
	}
	if p.SoftIterationBudget <= 0 {
		p.SoftIterationBudget = def.SoftIterationBudget
	}
	return p
}

// MakeContinuationDecision decides what follows the just-finished iteration
// current, given the task history in tc (which does not yet include current)
// and the outcome of the acceptance-criteria checks. Rules are tried in
// priority order and the first match wins:
//
//  1. every acceptance criterion met: complete
//  2. latest quality score at or above threshold: complete
//  3. quality scores stagnating: escalate
//  4. failed step ratio above threshold: abort
//  5. otherwise: continue
func MakeContinuationDecision(policy DecisionPolicy, tc *models.TaskContext, current models.TaskIteration, criteria CriteriaResult) models.ContinuationDecision {
	if criteria.AllMet() {
		return models.ContinuationDecision{
			Decision:   models.DecisionComplete,
			Confidence: criteria.Fraction(),
			Reasoning:  ReasonCriteriaMet,
		}
	}

	latest := current.Evaluation
	if latest == nil && tc != nil {
		latest = tc.LatestEvaluation()
	}

	if latest != nil && latest.OverallScore >= policy.QualityThreshold {
		return models.ContinuationDecision{
			Decision:   models.DecisionComplete,
			Confidence: confidenceQuality,
			Reasoning: fmt.Sprintf("Quality score %.1f meets threshold %.1f",
				latest.OverallScore, policy.QualityThreshold),
		}
	}

	iterations := historyWith(tc, current)

	if spread, ok := scoreSpread(iterations, policy.StagnationWindow); ok && spread < policy.StagnationSpread {
		return models.ContinuationDecision{
			Decision:   models.DecisionEscalate,
			Confidence: confidenceStagnation,
			Reasoning: fmt.Sprintf("Progress has stagnated: the last %d quality scores vary by only %.1f points",
				policy.StagnationWindow, spread),
		}
	}

	if failed, total := stepTotals(iterations); total > 0 {
		rate := float64(failed) / float64(total)
		if rate > policy.ErrorRateThreshold {
			return models.ContinuationDecision{
				Decision:   models.DecisionAbort,
				Confidence: confidenceErrorRate,
				Reasoning: fmt.Sprintf("Error rate too high: %d of %d steps failed (%.0f%%)",
					failed, total, rate*100),
			}
		}
	}

	decision := models.ContinuationDecision{
		Decision:           models.DecisionContinue,
		Confidence:         confidenceContinue,
		Reasoning:          continueReasoning(latest, policy, criteria),
		EstimatedRemaining: estimateRemaining(iterations, policy.SoftIterationBudget),
	}
	if latest != nil && len(latest.Suggestions) > 0 {
		decision.NextActions = append([]string(nil), latest.Suggestions...)
	}
	return decision
}

// historyWith returns the prior iterations followed by current.
func historyWith(tc *models.TaskContext, current models.TaskIteration) []models.TaskIteration {
	var prior []models.TaskIteration
	if tc != nil {
		prior = tc.Iterations
	}
	out := make([]models.TaskIteration, 0, len(prior)+1)
	out = append(out, prior...)
	return append(out, current)
}

// scoreSpread returns max-min over the overall scores of the last window
// evaluated iterations. ok is false when fewer than window scores exist.
func scoreSpread(iterations []models.TaskIteration, window int) (spread float64, ok bool) {
	if len(iterations) < window {
		return 0, false
	}

	var scores []float64
	for i := len(iterations) - 1; i >= 0 && len(scores) < window; i-- {
		if eval := iterations[i].Evaluation; eval != nil {
			scores = append(scores, eval.OverallScore)
		}
	}
	if len(scores) < window {
		return 0, false
	}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = min(lo, s)
		hi = max(hi, s)
	}
	return hi - lo, true
}

// stepTotals counts failed and total steps across iterations.
func stepTotals(iterations []models.TaskIteration) (failed, total int) {
	for _, it := range iterations {
		f, t := it.StepCounts()
		failed += f
		total += t
	}
	return failed, total
}

// estimateRemaining multiplies the average iteration duration by the
// iterations left in the soft budget.
func estimateRemaining(iterations []models.TaskIteration, budget int) time.Duration {
	remaining := max(0, budget-len(iterations))
	if remaining == 0 || len(iterations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, it := range iterations {
		sum += it.Duration()
	}
	avg := sum / time.Duration(len(iterations))
	return avg * time.Duration(remaining)
}

func continueReasoning(latest *models.EvaluationResult, policy DecisionPolicy, criteria CriteriaResult) string {
	reason := "Continuing: no completion condition met yet"
	if latest != nil {
		reason = fmt.Sprintf("Continuing: quality score %.1f is below threshold %.1f",
			latest.OverallScore, policy.QualityThreshold)
	}
	if criteria.Total > 0 {
		reason += fmt.Sprintf("; %d of %d acceptance criteria met", criteria.Met, criteria.Total)
	}
	return reason
}
