package outcome

import (
	"fmt"
	"strings"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// Evidence is every signal a verdict is decided from
type Evidence struct {
	Task           domain.ResolvedTask
	TimedOut       bool
	ReturnCode     int
	Text           TextEvidence
	Audit          []domain.AuditRecord
	Quality        domain.QualityEvidence
	Commits        []string
	CriticalErrors []domain.AuditRecord
	// AuditedTests is set when the test signal came from the audit trail
	AuditedTests   bool
}

// Collect merges text heuristics with the audit trail. Audit facts replace
// their text counterparts whenever the audit trail has them.
func Collect(task domain.ResolvedTask, returnCode int, timedOut bool, stdout, stderr []string, audit []domain.AuditRecord) Evidence {
	audit = append(append([]domain.AuditRecord(nil), audit...), AuditFromStdout(stdout)...)
	ev := Evidence{
		Task:           task,
		TimedOut:       timedOut,
		ReturnCode:     returnCode,
		Text:           ExtractText(stdout, stderr),
		Audit:          audit,
		CriticalErrors: CriticalErrors(audit),
	}

	ev.Quality = ev.Text.Quality
	if q, ok := AuditQuality(audit); ok {
		// Keep a text return code only when it agrees with the audited verdict
		if ev.Quality.ReturnCode != nil && (*ev.Quality.ReturnCode != 0) == q.Failed() {
			q.ReturnCode = ev.Quality.ReturnCode
		}
		ev.Quality = q
	}

	if sig, ok := AuditTestSignal(audit); ok {
		ev.Text.Precommit = sig
		ev.AuditedTests = true
	}

	ev.Commits = ev.Text.Commits
	if commits := AuditCommits(audit); len(commits) > 0 {
		ev.Commits = commits
	}
	return ev
}

// Verdict is the classified status of one run
type Verdict struct {
	Status    domain.OutcomeStatus
	Reason    string
	DriftNote string
}

// Decide applies the precedence rules; the first matching rule wins.
// Task drift blocks the run afterwards regardless of the other signals.
func (e Evidence) Decide() Verdict {
	v := Verdict{Status: domain.StatusBlocked}

	switch {
	case e.TimedOut:
		v.Reason = fmt.Sprintf("executor timed out (rc=%d)", domain.TimeoutReturnCode)
	case e.ReturnCode != 0:
		v.Reason = fmt.Sprintf("executor exited with code %d", e.ReturnCode)
	case e.Text.BlockedMarker:
		v.Reason = "executor reported status: blocked"
	case e.Text.Precommit == domain.SignalFail && !e.AuditedTests:
		v.Reason = "pre-commit or test run failed"
	case e.Quality.Failed():
		v.Reason = "quality gate failed: " + e.Quality.Summary()
	case len(e.CriticalErrors) > 0:
		v.Reason = describeAuditErrors(e.CriticalErrors)
	default:
		v.Status = domain.StatusDone
	}

	if note := e.driftNote(); note != "" {
		v.DriftNote = note
		if v.Status == domain.StatusDone {
			v.Status = domain.StatusBlocked
			v.Reason = note
		}
	}
	return v
}

func (e Evidence) driftNote() string {
	if !e.Task.IsResolved() || e.Text.ReportedTask == "" {
		return ""
	}
	if domain.SameTask(e.Task.ID, e.Text.ReportedTask) {
		return ""
	}
	return fmt.Sprintf("task drift: resolved %s but executor reported %s", e.Task.ID, e.Text.ReportedTask)
}

// QualityOnly reports whether the run is blocked solely by the quality gate,
// i.e. a passing gate would turn the verdict into done.
func (e Evidence) QualityOnly() bool {
	if e.Decide().Status != domain.StatusBlocked {
		return false
	}
	if !e.Quality.Failed() && !hasTool(e.CriticalErrors, QualityGateTool) {
		return false
	}
	return e.WithQualityPassed(e.Quality.Repaired).Decide().Status == domain.StatusDone
}

// WithQualityPassed returns a copy whose quality gate evidence is passing
func (e Evidence) WithQualityPassed(repaired bool) Evidence {
	zero := 0
	e.Quality = domain.QualityEvidence{Status: "pass", ReturnCode: &zero, Repaired: repaired}
	var remaining []domain.AuditRecord
	for _, rec := range e.CriticalErrors {
		if rec.Tool != QualityGateTool {
			remaining = append(remaining, rec)
		}
	}
	e.CriticalErrors = remaining
	if e.AuditedTests {
		e.Text.Precommit = domain.SignalPass
		for _, rec := range remaining {
			if testTools[rec.Tool] {
				e.Text.Precommit = domain.SignalFail
			}
		}
	}
	return e
}

// Apply writes the evidence and its verdict into an outcome
func (e Evidence) Apply(o *domain.RunOutcome) {
	v := e.Decide()

	o.ReturnCode = e.ReturnCode
	o.Commits = append([]string(nil), e.Commits...)
	o.Quality = e.Quality
	o.Branch = e.Text.Branch
	o.Precommit = e.Text.Precommit
	o.ReportedTask = e.Text.ReportedTask
	o.TechDebt = e.Text.TechDebt
	o.Audit = TerminalStatus(e.Audit)
	o.DriftNote = v.DriftNote

	o.Status = v.Status
	o.Reason = v.Reason
	o.BlockKind = domain.BlockNone
	if v.Status == domain.StatusBlocked {
		o.BlockKind = domain.BlockRuntime
	}
}

func describeAuditErrors(errs []domain.AuditRecord) string {
	parts := make([]string, 0, len(errs))
	for _, rec := range errs {
		p := rec.Tool + " ended ERROR"
		if rec.Preview != "" {
			p += ": " + rec.Preview
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}

func hasTool(records []domain.AuditRecord, tool string) bool {
	for _, rec := range records {
		if rec.Tool == tool {
			return true
		}
	}
	return false
}
