package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// planSystemPrompt instructs the planner to answer with one step per line.
const planSystemPrompt = `You plan work for an autonomous coding agent.
Reply with an ordered list of concrete steps, one step per line.
Each step must be a single instruction the agent can carry out on its own.
Do not include headings, explanations or blank commentary.`

// recentErrorLimit bounds how many TaskErrors are fed back into the plan prompt.
const recentErrorLimit = 5

// listMarker matches leading bullets and numbering such as "- ", "* ", "1. " or "2) ".
var listMarker = regexp.MustCompile(`(?i)^\s*(?:[-*•]|\d+[.)]|step\s+\d+[:.)]?)\s*`)

// ParsePlan turns plan text into ordered pending steps, one per non-blank
// line. Code fences are ignored. When maxSteps is positive the plan is cut
// to that many steps and truncated reports true.
func ParsePlan(text string, maxSteps int) (steps []models.ExecutionStep, truncated bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		desc := strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if desc == "" {
			continue
		}
		if maxSteps > 0 && len(steps) == maxSteps {
			truncated = true
			break
		}
		steps = append(steps, models.ExecutionStep{
			Index:       len(steps),
			Type:        ClassifyStep(desc),
			Description: desc,
			Status:      models.StepStatusPending,
		})
	}
	return steps, truncated
}

// ClassifyStep infers a step type from keywords. It only labels steps.
func ClassifyStep(description string) models.StepType {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "test"):
		return models.StepTypeTesting
	case strings.Contains(lower, "doc"):
		return models.StepTypeDocumentation
	case strings.Contains(lower, "analyz"), strings.Contains(lower, "analys"):
		return models.StepTypeAnalysis
	default:
		return models.StepTypeImplementation
	}
}

// BuildPlanPrompt builds the planning prompt for the next iteration of tc.
func BuildPlanPrompt(tc *models.TaskContext) string {
	var sb strings.Builder
	task := tc.Task

	sb.WriteString("Task ID: ")
	sb.WriteString(task.ID)
	sb.WriteString("\nTitle: ")
	sb.WriteString(task.Title)
	sb.WriteString("\n")

	if task.Description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(task.Description)
		sb.WriteString("\n")
	}

	writeList(&sb, "Requirements", task.Requirements)
	writeList(&sb, "Acceptance criteria", task.AcceptanceCriteria)

	sb.WriteString(fmt.Sprintf("\nIteration: %d\n", len(tc.Iterations)+1))

	if last := tc.LastIteration(); last != nil {
		sb.WriteString("\n## Previous iteration\n")
		sb.WriteString("Decision: ")
		sb.WriteString(string(last.Decision.Decision))
		sb.WriteString("\nReasoning: ")
		sb.WriteString(last.Decision.Reasoning)
		sb.WriteString("\n")
		failed, total := last.StepCounts()
		sb.WriteString(fmt.Sprintf("Steps failed: %d of %d\n", failed, total))
	}

	if eval := tc.LatestEvaluation(); eval != nil {
		sb.WriteString(fmt.Sprintf("\n## Latest evaluation\nScore: %.1f\n", eval.OverallScore))
		writeList(&sb, "Issues", eval.Issues)
		writeList(&sb, "Suggestions", eval.Suggestions)
	}

	if len(tc.Errors) > 0 {
		start := max(0, len(tc.Errors)-recentErrorLimit)
		sb.WriteString("\n## Recent errors\n")
		for _, e := range tc.Errors[start:] {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", e.Kind, e.Message))
		}
	}

	sb.WriteString("\nList the steps for this iteration.\n")
	return sb.String()
}

// BuildStepPrompt builds the agent prompt for one step of task.
func BuildStepPrompt(task models.Task, step models.ExecutionStep) string {
	var sb strings.Builder
	sb.WriteString("You are working on a task.\n\n")
	sb.WriteString("Task ID: ")
	sb.WriteString(task.ID)
	sb.WriteString("\nTitle: ")
	sb.WriteString(task.Title)
	sb.WriteString("\n")

	writeList(&sb, "Acceptance criteria", task.AcceptanceCriteria)

	sb.WriteString(fmt.Sprintf("\n## Step %d (%s)\n", step.Index+1, step.Type))
	sb.WriteString(step.Description)
	sb.WriteString("\n\nComplete only this step. When finished, summarize what was done.\n")
	return sb.String()
}

func writeList(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("\n")
	sb.WriteString(heading)
	sb.WriteString(":\n")
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}
