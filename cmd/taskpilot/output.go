package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/taskpilot/internal/orchestrator"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Width(14)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// statusStyle colors a task status.
func statusStyle(s models.TaskStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case models.TaskStatusCompleted:
		return base.Foreground(lipgloss.Color("#96E6A1"))
	case models.TaskStatusFailed:
		return base.Foreground(lipgloss.Color("#FF6B6B"))
	case models.TaskStatusEscalated:
		return base.Foreground(lipgloss.Color("#FFC857"))
	case models.TaskStatusCancelled:
		return base.Foreground(lipgloss.Color("243"))
	default:
		return base.Foreground(lipgloss.Color("#45B7D1"))
	}
}

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

// formatScore renders an optional quality score.
func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *score)
}

// elapsed returns the run time of a task, or 0 if it never started.
func elapsed(start, end *time.Time) time.Duration {
	if start == nil {
		return 0
	}
	if end == nil {
		return time.Since(*start)
	}
	return end.Sub(*start)
}

// summaryRow is one task line in a run summary or history listing.
type summaryRow struct {
	ID         string
	Title      string
	Status     models.TaskStatus
	Iterations int
	Score      *float64
	Cost       float64
	Duration   time.Duration
}

func rowFromContext(tc *models.TaskContext) summaryRow {
	return summaryRow{
		ID:         tc.Task.ID,
		Title:      tc.Task.Title,
		Status:     tc.Status,
		Iterations: tc.Metrics.Iterations,
		Score:      tc.Metrics.QualityScore,
		Cost:       tc.Metrics.EstimatedCost,
		Duration:   elapsed(tc.StartTime, tc.EndTime),
	}
}

// renderTable lays rows out in aligned columns.
func renderTable(rows []summaryRow) string {
	header := []string{"ID", "STATUS", "ITER", "SCORE", "COST", "TIME", "TITLE"}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{
			r.ID,
			string(r.Status),
			fmt.Sprintf("%d", r.Iterations),
			formatScore(r.Score),
			fmt.Sprintf("$%.2f", r.Cost),
			formatDuration(r.Duration),
			truncateText(r.Title, 48),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range cells {
		for i, c := range row {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	var b strings.Builder
	for i, h := range header {
		b.WriteString(headerStyle.Render(pad(h, widths[i])))
		b.WriteString("  ")
	}
	b.WriteString("\n")
	for ri, row := range cells {
		for i, c := range row {
			text := pad(c, widths[i])
			if i == 1 {
				text = statusStyle(rows[ri].Status).Render(text)
			}
			b.WriteString(text)
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderSummary renders the end-of-run report.
func renderSummary(tasks []*models.TaskContext, blocked []string) string {
	rows := make([]summaryRow, 0, len(tasks))
	counts := make(map[models.TaskStatus]int)
	var cost float64
	for _, tc := range tasks {
		rows = append(rows, rowFromContext(tc))
		counts[tc.Status]++
		cost += tc.Metrics.EstimatedCost
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Run summary"))
	b.WriteString("\n\n")
	if len(rows) > 0 {
		b.WriteString(renderTable(rows))
		b.WriteString("\n")
	}
	if len(blocked) > 0 {
		b.WriteString(statusStyle(models.TaskStatusFailed).Render("Blocked"))
		b.WriteString(mutedStyle.Render(" (a dependency did not complete): "))
		b.WriteString(strings.Join(blocked, ", "))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d completed, %d failed, %d escalated, %d cancelled, %d blocked. Estimated cost $%.2f\n",
		counts[models.TaskStatusCompleted],
		counts[models.TaskStatusFailed],
		counts[models.TaskStatusEscalated],
		counts[models.TaskStatusCancelled],
		len(blocked),
		cost)
	return b.String()
}

// renderTaskDetail renders one task with its iterations and errors.
func renderTaskDetail(tc *models.TaskContext) string {
	var b strings.Builder
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render(tc.Task.Title))
	b.WriteString("\n\n")
	field("ID", tc.Task.ID)
	field("Status", statusStyle(tc.Status).Render(string(tc.Status)))
	field("Priority", string(tc.Task.Priority))
	field("Progress", fmt.Sprintf("%.0f%%", tc.Progress))
	field("Iterations", fmt.Sprintf("%d", tc.Metrics.Iterations))
	field("Score", formatScore(tc.Metrics.QualityScore))
	field("Files", fmt.Sprintf("%d changed", tc.Metrics.FilesChanged))
	field("Calls", fmt.Sprintf("%d agent, %d LLM", tc.Metrics.AgentCalls, tc.Metrics.LLMCalls))
	field("Cost", fmt.Sprintf("$%.2f", tc.Metrics.EstimatedCost))
	if tc.StartTime != nil {
		field("Started", tc.StartTime.Local().Format(time.DateTime))
		field("Duration", formatDuration(elapsed(tc.StartTime, tc.EndTime)))
	}

	if len(tc.Iterations) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Iterations"))
		b.WriteString("\n")
		for _, it := range tc.Iterations {
			d := it.Decision
			fmt.Fprintf(&b, "  #%d %-9s %.2f  %s\n", it.Number, d.Decision, d.Confidence, truncateText(d.Reasoning, 72))
		}
	}

	if len(tc.Errors) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Errors"))
		b.WriteString("\n")
		for _, e := range tc.Errors {
			fmt.Fprintf(&b, "  %s [%s/%s] %s: %s\n",
				e.Timestamp.Local().Format(time.TimeOnly), e.Severity, e.Type, e.Kind, truncateText(e.Message, 72))
		}
	}
	return b.String()
}

// progressPrinter prints one line per lifecycle event while a run is active.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func newProgressPrinter(w io.Writer, verbose bool) *progressPrinter {
	return &progressPrinter{w: w, verbose: verbose}
}

// Handle is an orchestrator.Subscriber.
func (p *progressPrinter) Handle(ev orchestrator.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case orchestrator.EventTaskQueued:
		if p.verbose {
			printStatus(p.w, "·", fmt.Sprintf("%s queued", ev.TaskID), color.FgHiBlack)
		}
	case orchestrator.EventTaskStarted:
		printStatus(p.w, "▶", fmt.Sprintf("%s started: %s", ev.TaskID, ev.TaskTitle), color.FgCyan)
	case orchestrator.EventStepOutput:
		if p.verbose && ev.Message != "" {
			fmt.Fprintf(p.w, "    %s\n", truncateText(ev.Message, 100))
		}
	case orchestrator.EventIterationCompleted:
		fmt.Fprintf(p.w, "  iteration %d: %s (%.2f) %s\n",
			ev.Iteration, ev.Decision, ev.Confidence, truncateText(ev.Message, 80))
	case orchestrator.EventTaskCompleted:
		printStatus(p.w, "✓", fmt.Sprintf("%s completed", ev.TaskID), color.FgGreen)
	case orchestrator.EventTaskFailed:
		printStatus(p.w, "✗", fmt.Sprintf("%s failed: %s", ev.TaskID, truncateText(ev.Message, 80)), color.FgRed)
	case orchestrator.EventTaskEscalated:
		printStatus(p.w, "⚠", fmt.Sprintf("%s needs a human: %s", ev.TaskID, truncateText(ev.Message, 80)), color.FgYellow)
	case orchestrator.EventTaskCancelled:
		printStatus(p.w, "■", fmt.Sprintf("%s cancelled", ev.TaskID), color.FgHiBlack)
	}
}

// truncateText shortens s to n runes on a single line.
func truncateText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
