package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/hochfrequenz/squad-orchestrator/internal/outcome"
	"github.com/hochfrequenz/squad-orchestrator/internal/runstore"
)

// plan runs the executor in planning mode inside the repository root.
// No worktree, no commit gating and no rollback; the ledger only gets a
// planning marker.
func (d *Dispatcher) plan(ctx context.Context, p *pass, st *runState) {
	env := buildEnv(d.baseEnv, st)
	agent := d.agent(st, env)

	d.record(d.event(p, st, runstore.PhaseRunStart, "plan in "+st.workDir))
	st.logger.Info("planner started", "task", st.task.ID)

	res, err := agent.Run(ctx)
	if err != nil {
		d.transportFailure(p, st, res, err)
		return
	}
	st.outcome.ReturnCode = res.ReturnCode
	st.outcome.StdoutTail = outcome.Tail(res.Stdout, outcome.TailLines)
	st.outcome.StderrTail = outcome.Tail(res.Stderr, outcome.TailLines)

	switch {
	case res.TimedOut:
		st.outcome.Blocked(domain.BlockRuntime, fmt.Sprintf("planner timed out (rc=%d)", domain.TimeoutReturnCode))
	case res.ReturnCode != 0:
		st.outcome.Blocked(domain.BlockRuntime, fmt.Sprintf("planner exited with code %d", res.ReturnCode))
	default:
		st.outcome.Status = domain.StatusDone
	}

	path, err := d.writePlan(st, res.Stdout)
	if err != nil {
		st.logger.Error("writing plan failed", "error", err.Error())
		if st.outcome.Status == domain.StatusDone {
			st.outcome.Blocked(domain.BlockTransport, "writing plan: "+err.Error())
		}
	}
	st.outcome.PlanPath = path

	d.appendLedger(st)
	d.record(d.event(p, st, runstore.PhaseRunEnd, "plan: "+path))
}

// writePlan stores the planner's stdout under <reports>/plans
func (d *Dispatcher) writePlan(st *runState, stdout []string) (string, error) {
	dir := filepath.Join(d.cfg.General.ReportsDir, "plans")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.md", st.briefingHash[:8], sanitize(st.repo.Name)))

	var b strings.Builder
	fmt.Fprintf(&b, "# Plan: %s (%s)\n\n", st.repo.Name, st.task)
	fmt.Fprintf(&b, "Briefing: %s\n\n", st.briefing)
	for _, line := range stdout {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '-'
		}
		return r
	}, name)
}
