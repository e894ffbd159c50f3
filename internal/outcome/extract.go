// Package outcome turns executor output and audit trails into a run verdict.
package outcome

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

const (
	// MaxCommits bounds the commit hashes kept from free text
	MaxCommits = 5
	// MaxTechDebtHints bounds the tech-debt hint lines
	MaxTechDebtHints = 5
	// TailLines is the number of stdout/stderr lines kept for reports
	TailLines = 20

	maxHintLength = 200
)

var (
	reportedTaskRegex  = regexp.MustCompile(`(?i)^\s*(?:completed_)?task(?:_id)?\s*[:=]\s*\**([A-Za-z]+-?\d+)\**\s*$`)
	blockedMarkerRegex = regexp.MustCompile(`(?i)^\s*status\s*[:=]\s*blocked\b`)
	qualityStatusRegex = regexp.MustCompile(`(?i)\bquality(?:_gate)?_status\s*[:=]\s*([A-Za-z]+)`)
	returnCodeRegex    = regexp.MustCompile(`(?i)\b(?:quality_)?return_code\s*[:=]\s*(-?\d+)`)
	branchBlockedRegex = regexp.MustCompile(`BLOCKED:\s*branch/task drift detected`)
	branchCreatedRegex = regexp.MustCompile(`Branch '([^']+)' created`)
	commitLineRegex    = regexp.MustCompile(`(?i)commit`)
	hexRegex           = regexp.MustCompile(`\b[0-9a-f]{7,40}\b`)
	negatedFailRegex   = regexp.MustCompile(`\b(?:0|no|zero|without)\s+(?:failed|failures?|errors?)\b`)
	failRegex          = regexp.MustCompile(`\bfail(?:ed|s|ing|ures?)?\b|\b[1-9]\d*\s+errors?\b|\berrors?\s*(?::|in\b|at\b)|^\W*errors?\b`)
)

var (
	signalSubjects = []string{"pre-commit", "precommit", "pytest", "jest", "vitest", "tests", "test suite", "lint"}
	passWords      = []string{"passed", "pass", "success", "succeeded", " ok"}
	techDebtWords  = []string{"todo", "fixme", "tech debt", "technical debt", "workaround", "deprecated"}
)

// TextEvidence is what the free-text heuristics found in executor output
type TextEvidence struct {
	ReportedTask  string
	BlockedMarker bool
	Quality       domain.QualityEvidence
	Branch        domain.BranchEvidence
	Commits       []string
	Precommit     domain.Signal
	TechDebt      []string
}

// ExtractText scans stdout and stderr lines. Later lines win for single-valued fields.
func ExtractText(stdout, stderr []string) TextEvidence {
	ev := TextEvidence{Precommit: domain.SignalUnknown}

	lines := make([]string, 0, len(stdout)+len(stderr))
	lines = append(lines, stdout...)
	lines = append(lines, stderr...)

	var commits []string
	seenCommit := make(map[string]bool)
	seenHint := make(map[string]bool)
	last := domain.SignalUnknown

	for _, line := range lines {
		if strings.HasPrefix(line, auditPrefix) {
			continue
		}

		if m := reportedTaskRegex.FindStringSubmatch(line); m != nil {
			ev.ReportedTask = strings.ToUpper(m[1])
		}
		if blockedMarkerRegex.MatchString(line) {
			ev.BlockedMarker = true
		}
		if m := qualityStatusRegex.FindStringSubmatch(line); m != nil {
			ev.Quality.Status = strings.ToLower(m[1])
		}
		if m := returnCodeRegex.FindStringSubmatch(line); m != nil {
			if rc, err := strconv.Atoi(m[1]); err == nil {
				ev.Quality.ReturnCode = &rc
			}
		}

		if branchBlockedRegex.MatchString(line) {
			ev.Branch = domain.BranchEvidence{Verdict: "blocked", Detail: strings.TrimSpace(line)}
		} else if m := branchCreatedRegex.FindStringSubmatch(line); m != nil && ev.Branch.Verdict != "blocked" {
			ev.Branch = domain.BranchEvidence{Verdict: "created", Detail: m[1]}
		}

		if commitLineRegex.MatchString(line) {
			for _, h := range hexRegex.FindAllString(line, -1) {
				if !looksLikeHash(h) || seenCommit[h] {
					continue
				}
				seenCommit[h] = true
				commits = append(commits, h)
			}
		}

		if sig := classifySignalLine(line); sig != domain.SignalUnknown {
			last = sig
		}

		if hint := techDebtHint(line); hint != "" && len(ev.TechDebt) < MaxTechDebtHints && !seenHint[hint] {
			seenHint[hint] = true
			ev.TechDebt = append(ev.TechDebt, hint)
		}
	}

	if len(commits) > MaxCommits {
		commits = commits[len(commits)-MaxCommits:]
	}
	ev.Commits = commits

	ev.Precommit = last
	return ev
}

// looksLikeHash rejects purely numeric tokens such as dates
func looksLikeHash(s string) bool {
	return strings.ContainsAny(s, "abcdef")
}

// classifySignalLine is a keyword co-occurrence check: a line naming a
// pre-commit or test subject together with a failure or pass word.
// Negated failures ("0 failed", "no errors") and "error" used as a plain
// noun ("tests for error handling") do not count.
func classifySignalLine(line string) domain.Signal {
	lower := strings.ToLower(line)
	if !containsAny(lower, signalSubjects) {
		return domain.SignalUnknown
	}
	lower = negatedFailRegex.ReplaceAllString(lower, "")
	if failRegex.MatchString(lower) {
		return domain.SignalFail
	}
	if containsAny(" "+lower, passWords) {
		return domain.SignalPass
	}
	return domain.SignalUnknown
}

func techDebtHint(line string) string {
	lower := strings.ToLower(line)
	if !containsAny(lower, techDebtWords) {
		return ""
	}
	hint := []rune(strings.TrimSpace(line))
	if len(hint) > maxHintLength {
		return string(hint[:maxHintLength]) + "..."
	}
	return string(hint)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Tail returns the last n lines, skipping trailing blanks
func Tail(lines []string, n int) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return append([]string(nil), lines[start:end]...)
}
