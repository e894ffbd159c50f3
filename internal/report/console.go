package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize/english"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	doneStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	blockedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196"))

	skippedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))
)

func statusStyle(s domain.OutcomeStatus) lipgloss.Style {
	switch s {
	case domain.StatusDone:
		return doneStyle
	case domain.StatusBlocked:
		return blockedStyle
	default:
		return skippedStyle
	}
}

// PrintSummary writes the console summary of r
func PrintSummary(w io.Writer, r *domain.Report, path string) {
	done, blocked, skipped := r.Counts()

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("=== ORCHESTRATION SUMMARY (%s) ===", r.Mode)))

	width := 0
	for _, o := range r.Outcomes {
		width = max(width, len(o.Repo))
	}
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("%-*s  %-10s %-8s", width, o.Repo, o.Task, statusStyle(o.Status).Render(fmt.Sprintf("%-7s", o.Status)))
		if detail := summaryDetail(o); detail != "" {
			line += "  " + dimmedStyle.Render(detail)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	counts := fmt.Sprintf("%s done, %s blocked, %s skipped",
		doneStyle.Render(fmt.Sprint(done)),
		blockedStyle.Render(fmt.Sprint(blocked)),
		skippedStyle.Render(fmt.Sprint(skipped)))
	fmt.Fprintln(w, counts)
	if r.AverageRunTime > 0 {
		fmt.Fprintf(w, "Average run time: %s\n", r.AverageRunTime.Round(time.Second))
	}
	if path != "" {
		fmt.Fprintf(w, "Report: %s\n", path)
	}
	fmt.Fprintf(w, "Exit code: %d\n", r.ExitCode())
}

func summaryDetail(o domain.RunOutcome) string {
	switch o.Status {
	case domain.StatusBlocked:
		return truncate(o.Reason, 100)
	case domain.StatusSkipped:
		return truncate(o.SkipReason, 100)
	}
	var parts []string
	if o.Duration > 0 {
		parts = append(parts, o.Duration.Round(time.Second).String())
	}
	if n := len(o.Commits); n > 0 {
		parts = append(parts, english.Plural(n, "commit", "commits"))
	}
	if o.Quality.Repaired {
		parts = append(parts, "quality repaired")
	}
	return strings.Join(parts, ", ")
}

// truncate shortens s to n terminal columns without splitting a rune
func truncate(s string, n int) string {
	return ansi.Truncate(strings.ReplaceAll(s, "\n", " "), n, "...")
}
