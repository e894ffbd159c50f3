package domain

import (
	"strconv"
	"time"
)

// RunRequest is one orchestration pass over a fixed set of repositories
type RunRequest struct {
	Briefing   string
	Mode       ExecutionMode
	Targets    []string
	Force      bool
	AllowDirty bool
}

// Repository is the read-only profile of a target repository
type Repository struct {
	Name            string
	Root            string
	DefaultBranch   string
	BoardPath       string
	DependencyLinks []string
	QualityCommand  string
	RepairCommands  []string
}

// QualityEvidence is what the executor reported about quality gates
type QualityEvidence struct {
	Status     string `json:"status,omitempty"`
	ReturnCode *int   `json:"return_code,omitempty"`
	Repaired   bool   `json:"repaired,omitempty"`
}

// Failed reports whether the evidence shows a failing gate
func (q QualityEvidence) Failed() bool {
	switch q.Status {
	case "fail", "failed", "error":
		return true
	}
	return q.ReturnCode != nil && *q.ReturnCode != 0
}

// Summary renders the evidence for tables
func (q QualityEvidence) Summary() string {
	if q.Status == "" && q.ReturnCode == nil {
		return "-"
	}
	s := q.Status
	if s == "" {
		s = "?"
	}
	if q.ReturnCode != nil {
		s += " (rc=" + strconv.Itoa(*q.ReturnCode) + ")"
	}
	if q.Repaired {
		s += " repaired"
	}
	return s
}

// BranchEvidence is the branch guardrail verdict seen in executor output
type BranchEvidence struct {
	Verdict string `json:"verdict,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Summary renders the evidence for tables
func (b BranchEvidence) Summary() string {
	if b.Verdict == "" {
		return "-"
	}
	return b.Verdict
}

// AuditRecord is one tool invocation from the executor's audit trail
type AuditRecord struct {
	Tool    string      `json:"tool"`
	Status  AuditStatus `json:"status"`
	Preview string      `json:"preview,omitempty"`
	Commit  string      `json:"commit,omitempty"`
}

// WorktreeState is the lifecycle position of an execution worktree
type WorktreeState string

const (
	WorktreeCreating  WorktreeState = "creating"
	WorktreeHydrating WorktreeState = "hydrating"
	WorktreeReady     WorktreeState = "ready"
	WorktreeRemoving  WorktreeState = "removing"
	WorktreeRemoved   WorktreeState = "removed"
)

// Worktree is an isolated working copy owned by exactly one run
type Worktree struct {
	Path       string
	SourceRepo string
	BaseRef    string
	CreatedAt  time.Time
	Links      []string
	State      WorktreeState
}

// RunOutcome is the classified result for one repository
type RunOutcome struct {
	RunID        string
	Repo         string
	Task         ResolvedTask
	Mode         ExecutionMode
	Status       OutcomeStatus
	BlockKind    BlockKind
	Reason       string
	ReturnCode   int
	Duration     time.Duration
	StdoutTail   []string
	StderrTail   []string
	Commits      []string
	Quality      QualityEvidence
	Branch       BranchEvidence
	Precommit    Signal
	ReportedTask string
	TechDebt     []string
	Audit        []AuditRecord
	DriftNote    string
	SkipReason   string
	WorktreePath string
	PlanPath     string
	RolledBack   bool
}

// Blocked marks the outcome blocked with a reason
func (o *RunOutcome) Blocked(kind BlockKind, reason string) {
	o.Status = StatusBlocked
	o.BlockKind = kind
	o.Reason = reason
}

// LedgerEntry is one append-only record of a finished run
type LedgerEntry struct {
	Timestamp       time.Time       `json:"timestamp"`
	RunID           string          `json:"run_id,omitempty"`
	Repo            string          `json:"repo"`
	TaskID          string          `json:"task_id"`
	BriefingHash    string          `json:"briefing_hash"`
	ExecutionMode   ExecutionMode   `json:"execution_mode"`
	Status          OutcomeStatus   `json:"status"`
	ReturnCode      int             `json:"return_code"`
	DurationSeconds float64         `json:"duration_seconds"`
	CommitHashes    []string        `json:"commit_hashes"`
	Quality         QualityEvidence `json:"quality"`
	BranchGuardrail BranchEvidence  `json:"branch_guardrail"`
}

// Report aggregates all outcomes for one briefing
type Report struct {
	Briefing       string
	BriefingHash   string
	Mode           ExecutionMode
	GeneratedAt    time.Time
	AverageRunTime time.Duration
	Outcomes       []RunOutcome
}

// Counts returns done, blocked and skipped totals
func (r *Report) Counts() (done, blocked, skipped int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusDone:
			done++
		case StatusBlocked:
			blocked++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// ExitCode is 0 iff no repository ended blocked
func (r *Report) ExitCode() int {
	if _, blocked, _ := r.Counts(); blocked > 0 {
		return 1
	}
	return 0
}
