package dispatch

import (
	"errors"
	"fmt"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/hochfrequenz/squad-orchestrator/internal/executor"
	"github.com/hochfrequenz/squad-orchestrator/internal/policy"
	"github.com/hochfrequenz/squad-orchestrator/internal/resolver"
)

// PreflightError blocks a run before any side effect happened
type PreflightError struct {
	Repo  string
	Check string
	Err   error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("%s: preflight %s: %v", e.Repo, e.Check, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// ErrDirtyTree is returned when the target checkout has uncommitted changes
var ErrDirtyTree = errors.New("working tree has uncommitted changes")

// preflight resolves the task and checks policy and cleanliness. It reads
// the repository but never writes to it.
func (d *Dispatcher) preflight(st *runState, allowDirty bool) error {
	st.task = resolver.Resolve(st.repo, st.briefing)
	st.outcome.Task = st.task

	fingerprint, err := policy.NewValidator(d.cfg.Governance.Root, d.cfg.Governance.Files).
		Validate(d.cfg.Governance.ExpectedFingerprint)
	st.fingerprint = fingerprint
	if err != nil {
		return &PreflightError{Repo: st.repo.Name, Check: "policy", Err: err}
	}

	if !st.task.IsResolved() {
		return &PreflightError{Repo: st.repo.Name, Check: "task", Err: resolver.ErrUnresolved}
	}

	if st.mode == domain.ModeRun && !allowDirty {
		clean, err := executor.IsClean(st.repo.Root)
		if err != nil {
			return &PreflightError{Repo: st.repo.Name, Check: "cleanliness", Err: err}
		}
		if !clean {
			return &PreflightError{Repo: st.repo.Name, Check: "cleanliness", Err: ErrDirtyTree}
		}
	}
	return nil
}
