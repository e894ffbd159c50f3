// Package quality runs a repository's repair commands and re-checks its quality gate.
package quality

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/hochfrequenz/squad-orchestrator/internal/executor"
)

// DefaultCommandTimeout bounds each repair or gate command
const DefaultCommandTimeout = 10 * time.Minute

// Result describes one repair cycle
type Result struct {
	Passed     bool
	Attempts   int
	ReturnCode int
	Commit     string
	Output     []string
}

// Repairer runs repair cycles in a checkout
type Repairer struct {
	Timeout time.Duration
	Env     []string
	OnLine  executor.LineFunc
}

// Repair runs the repository's ordered repair commands followed by its
// quality command, up to maxAttempts times. When the gate passes and the
// repair changed files, the changes are committed in dir.
func (r *Repairer) Repair(ctx context.Context, repo domain.Repository, task domain.ResolvedTask, dir string, maxAttempts int) (*Result, error) {
	if repo.QualityCommand == "" {
		return nil, fmt.Errorf("repository %s has no quality command", repo.Name)
	}
	if maxAttempts < 1 {
		return &Result{}, nil
	}

	res := &Result{ReturnCode: -1}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt

		for _, command := range repo.RepairCommands {
			// Repair commands may legitimately exit non-zero after fixing things
			if _, err := r.run(ctx, repo.Name+"/repair", dir, command, res); err != nil {
				return res, err
			}
		}

		rc, err := r.run(ctx, repo.Name+"/quality", dir, repo.QualityCommand, res)
		if err != nil {
			return res, err
		}
		res.ReturnCode = rc
		if rc == 0 {
			res.Passed = true
			break
		}
	}

	if !res.Passed {
		return res, nil
	}

	commit, err := executor.CommitAll(dir, fmt.Sprintf("style(quality): auto-repair for %s", task))
	if err != nil {
		return res, fmt.Errorf("committing repair: %w", err)
	}
	res.Commit = commit
	return res, nil
}

func (r *Repairer) run(ctx context.Context, name, dir, command string, res *Result) (int, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}
	shell, flag := shellCommand()
	agent := &executor.Agent{
		Name:    name,
		Command: shell,
		Args:    []string{flag, command},
		Dir:     dir,
		Env:     r.Env,
		Timeout: timeout,
		OnLine:  r.OnLine,
	}
	out, err := agent.Run(ctx)
	if err != nil {
		return domain.TransportReturnCode, fmt.Errorf("running %q: %w", command, err)
	}
	res.Output = append(res.Output, "COMMAND: "+command)
	res.Output = append(res.Output, out.Stdout...)
	res.Output = append(res.Output, out.Stderr...)
	res.Output = append(res.Output, fmt.Sprintf("RETURN_CODE: %d", out.ReturnCode))
	return out.ReturnCode, nil
}

func shellCommand() (string, string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "/bin/sh", "-c"
}
