// Package report renders the per-briefing orchestration document.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/hochfrequenz/squad-orchestrator/internal/parser"
)

// HashPrefixLength is how much of the briefing hash names the report file
const HashPrefixLength = 8

// Summary is the YAML front matter of a report
type Summary struct {
	BriefingHash string    `yaml:"briefing_hash"`
	Mode         string    `yaml:"mode"`
	GeneratedAt  time.Time `yaml:"generated_at"`
	Targets      []string  `yaml:"targets"`
	Done         int       `yaml:"done"`
	Blocked      int       `yaml:"blocked"`
	Skipped      int       `yaml:"skipped"`
	ExitCode     int       `yaml:"exit_code"`
}

// Path returns the report location for a briefing hash
func Path(reportsDir, briefingHash string) string {
	return filepath.Join(reportsDir, "orchestration-"+shortHash(briefingHash)+".md")
}

func shortHash(h string) string {
	if len(h) > HashPrefixLength {
		return h[:HashPrefixLength]
	}
	return h
}

// Write renders r to its path under reportsDir, replacing an earlier report
// for the same briefing
func Write(reportsDir string, r *domain.Report) (string, error) {
	data, err := Render(r)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("creating reports dir: %w", err)
	}
	path := Path(reportsDir, r.BriefingHash)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// Render returns the markdown document for r
func Render(r *domain.Report) ([]byte, error) {
	return parser.RenderFrontmatter(summaryOf(r), []byte(body(r)))
}

// ReadSummary parses the front matter of a written report
func ReadSummary(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if _, err := parser.ParseFrontmatter(data, &s); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// List returns the report files in reportsDir
func List(reportsDir string) ([]string, error) {
	return filepath.Glob(filepath.Join(reportsDir, "orchestration-*.md"))
}

func summaryOf(r *domain.Report) Summary {
	done, blocked, skipped := r.Counts()
	targets := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		targets = append(targets, o.Repo)
	}
	return Summary{
		BriefingHash: r.BriefingHash,
		Mode:         string(r.Mode),
		GeneratedAt:  r.GeneratedAt.UTC().Truncate(time.Second),
		Targets:      targets,
		Done:         done,
		Blocked:      blocked,
		Skipped:      skipped,
		ExitCode:     r.ExitCode(),
	}
}

func body(r *domain.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Orchestration %s\n\n", shortHash(r.BriefingHash))
	b.WriteString("## Briefing\n\n")
	for _, line := range strings.Split(strings.TrimSpace(r.Briefing), "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}
	b.WriteString("\n## Summary\n\n")
	b.WriteString("| Repository | Task | Status | RC | Duration | Pre-commit | Quality | Branch |\n")
	b.WriteString("|------------|------|--------|----|----------|------------|---------|--------|\n")
	for _, o := range r.Outcomes {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			o.Repo,
			o.Task,
			o.Status,
			returnCode(o),
			formatDuration(o.Duration),
			signal(o.Precommit),
			cell(o.Quality.Summary()),
			cell(o.Branch.Summary()),
		)
	}

	b.WriteString("\n## Details\n")
	for _, o := range r.Outcomes {
		writeDetails(&b, o)
	}
	return b.String()
}

func writeDetails(b *strings.Builder, o domain.RunOutcome) {
	fmt.Fprintf(b, "\n### %s\n\n", o.Repo)
	fmt.Fprintf(b, "- Task: %s (%s)\n", o.Task, o.Task.Source)
	fmt.Fprintf(b, "- Status: %s\n", o.Status)
	if o.RunID != "" {
		fmt.Fprintf(b, "- Run: %s\n", o.RunID)
	}
	if o.Status == domain.StatusBlocked {
		fmt.Fprintf(b, "- Blocked (%s): %s\n", o.BlockKind, o.Reason)
	}
	if o.SkipReason != "" {
		fmt.Fprintf(b, "- Skip reason: %s\n", o.SkipReason)
	}
	if o.DriftNote != "" {
		fmt.Fprintf(b, "- Drift: %s\n", o.DriftNote)
	}
	if o.ReportedTask != "" {
		fmt.Fprintf(b, "- Reported task: %s\n", o.ReportedTask)
	}
	if o.RolledBack {
		b.WriteString("- Working tree rolled back\n")
	}
	if o.PlanPath != "" {
		fmt.Fprintf(b, "- Plan: %s\n", o.PlanPath)
	}

	if len(o.Commits) > 0 {
		b.WriteString("\n**Commits**\n\n")
		for _, c := range o.Commits {
			fmt.Fprintf(b, "- `%s`\n", c)
		}
	}
	if len(o.Audit) > 0 {
		b.WriteString("\n**Audit**\n\n")
		for _, rec := range o.Audit {
			fmt.Fprintf(b, "- %s: %s", rec.Tool, rec.Status)
			if rec.Preview != "" {
				fmt.Fprintf(b, " (%s)", rec.Preview)
			}
			b.WriteByte('\n')
		}
	}
	if len(o.TechDebt) > 0 {
		b.WriteString("\n**Possible tech debt**\n\n")
		for _, hint := range o.TechDebt {
			fmt.Fprintf(b, "- %s\n", hint)
		}
	}
	writeTail(b, "stdout", o.StdoutTail)
	writeTail(b, "stderr", o.StderrTail)
}

func writeTail(b *strings.Builder, name string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fence := codeFence(lines)
	fmt.Fprintf(b, "\n**%s (tail)**\n\n%s\n", name, fence)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(fence + "\n")
}

// codeFence returns a backtick fence longer than any backtick run in lines
func codeFence(lines []string) string {
	longest := 0
	for _, line := range lines {
		run := 0
		for _, r := range line {
			if r != '`' {
				run = 0
				continue
			}
			run++
			longest = max(longest, run)
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

func returnCode(o domain.RunOutcome) string {
	if o.Status == domain.StatusSkipped || (o.BlockKind == domain.BlockPreflight) {
		return "-"
	}
	return fmt.Sprintf("%d", o.ReturnCode)
}

func signal(s domain.Signal) string {
	if s == "" {
		return string(domain.SignalUnknown)
	}
	return string(s)
}

// cell keeps table cells on one line
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "/")
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
