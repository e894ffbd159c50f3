package domain

// ExecutionMode selects how far the executor is allowed to go
type ExecutionMode string

const (
	ModeRun      ExecutionMode = "run"
	ModePlanOnly ExecutionMode = "plan_only"
)

// ParseExecutionMode normalizes user input, defaulting to run
func ParseExecutionMode(s string) (ExecutionMode, bool) {
	switch s {
	case "", "run":
		return ModeRun, true
	case "plan_only", "plan-only", "plan":
		return ModePlanOnly, true
	default:
		return "", false
	}
}

// BoardStatus is the normalized status of a task-board item
type BoardStatus string

const (
	BoardTodo       BoardStatus = "todo"
	BoardInProgress BoardStatus = "in_progress"
	BoardBlocked    BoardStatus = "blocked"
	BoardDone       BoardStatus = "done"
)

// OutcomeStatus is the verdict for one repository in one pass
type OutcomeStatus string

const (
	StatusDone    OutcomeStatus = "done"
	StatusBlocked OutcomeStatus = "blocked"
	StatusSkipped OutcomeStatus = "skipped"
)

// BlockKind says at which stage a blocked outcome was decided
type BlockKind string

const (
	BlockNone      BlockKind = ""
	BlockPreflight BlockKind = "preflight"
	BlockRuntime   BlockKind = "runtime"
	BlockTransport BlockKind = "transport"
)

// Signal is a coarse pass/fail/unknown verdict derived from free text
type Signal string

const (
	SignalUnknown Signal = "unknown"
	SignalPass    Signal = "pass"
	SignalFail    Signal = "fail"
)

// AuditStatus is the terminal status of one executor tool invocation
type AuditStatus string

const (
	AuditOK    AuditStatus = "OK"
	AuditError AuditStatus = "ERROR"
)

// TimeoutReturnCode is recorded when a child exceeds its wall-clock timeout.
// Matches the exit status of coreutils timeout(1).
const TimeoutReturnCode = 124

// TransportReturnCode is recorded when supervising the child failed outright
const TransportReturnCode = -1
