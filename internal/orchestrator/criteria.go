package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/taskpilot/internal/llm"
	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

const criterionSystemPrompt = `You verify whether an acceptance criterion for a coding task is met.
Answer with exactly one word on the first line: true or false.`

// CriteriaResult summarizes one round of acceptance-criteria checks.
type CriteriaResult struct {
	// Total is the number of criteria checked.
	Total int
	// Met is the number of criteria judged met.
	Met int
	// Calls is the number of collaborator calls made.
	Calls int
}

// AllMet reports whether there was at least one criterion and every one was met.
func (r CriteriaResult) AllMet() bool {
	return r.Total > 0 && r.Met == r.Total
}

// Fraction returns Met/Total, or 0 when there were no criteria.
func (r CriteriaResult) Fraction() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Met) / float64(r.Total)
}

// CriteriaChecker asks the text-generation collaborator whether each
// acceptance criterion holds. Errors and ambiguous answers count as not met.
type CriteriaChecker struct {
	gen    llm.Generator
	logger *logging.Logger
}

// NewCriteriaChecker creates a CriteriaChecker.
func NewCriteriaChecker(gen llm.Generator, logger *logging.Logger) *CriteriaChecker {
	return &CriteriaChecker{gen: gen, logger: logger}
}

// Check evaluates every acceptance criterion of tc against the progress
// described by current.
func (c *CriteriaChecker) Check(ctx context.Context, tc *models.TaskContext, current models.TaskIteration) CriteriaResult {
	criteria := tc.Task.AcceptanceCriteria
	result := CriteriaResult{Total: len(criteria)}
	if c == nil || c.gen == nil {
		return result
	}

	for _, criterion := range criteria {
		result.Calls++
		answer, err := c.gen.Generate(ctx, criterionSystemPrompt, buildCriterionPrompt(tc, current, criterion))
		if err != nil {
			c.logger.Warn("criterion check failed, treating as not met",
				"criterion", criterion,
				"error", err)
			continue
		}
		if ParseCriterionAnswer(answer) {
			result.Met++
		} else {
			c.logger.Debug("criterion not met", "criterion", criterion)
		}
	}
	return result
}

// ParseCriterionAnswer reads a yes/no answer. Only an unambiguous "true" or
// "yes" on the first line, or a JSON object {"met": true}, counts as met.
func ParseCriterionAnswer(answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}

	if strings.HasPrefix(answer, "{") {
		var parsed struct {
			Met *bool `json:"met"`
		}
		if err := json.Unmarshal([]byte(answer), &parsed); err != nil || parsed.Met == nil {
			return false
		}
		return *parsed.Met
	}

	first, _, _ := strings.Cut(answer, "\n")
	first = strings.ToLower(strings.TrimSpace(first))
	first = strings.Trim(first, ".!*`\"' ")
	return first == "true" || first == "yes"
}

func buildCriterionPrompt(tc *models.TaskContext, current models.TaskIteration, criterion string) string {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(tc.Task.Title)
	sb.WriteString("\n")
	if tc.Task.Description != "" {
		sb.WriteString(tc.Task.Description)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\nIteration %d progress:\n", len(tc.Iterations)+1))
	for _, step := range current.Steps {
		sb.WriteString(fmt.Sprintf("- [%s] %s\n", step.Status, step.Description))
		if out := strings.TrimSpace(step.Output); out != "" {
			sb.WriteString("  Output: ")
			sb.WriteString(truncate(out, 500))
			sb.WriteString("\n")
		}
	}
	if current.Evaluation != nil {
		sb.WriteString(fmt.Sprintf("Quality score: %.1f\n", current.Evaluation.OverallScore))
	}

	sb.WriteString("\nCriterion: ")
	sb.WriteString(criterion)
	sb.WriteString("\nIs this criterion met? Answer true or false.\n")
	return sb.String()
}

// truncate shortens s to at most n bytes, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
