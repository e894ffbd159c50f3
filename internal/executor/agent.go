package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// Stream identifies which pipe an output line came from
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LineFunc receives each output line as soon as it is read
type LineFunc func(stream Stream, line string)

// Agent is one code-change executor subprocess bound to one repository
type Agent struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration // zero disables the wall-clock limit
	OnLine  LineFunc
}

// Result is what the executor left behind
type Result struct {
	ReturnCode int
	TimedOut   bool
	Stdout     []string
	Stderr     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock run time
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run starts the executor and blocks until it exits or its timeout fires.
// On timeout the whole process group is killed and ReturnCode is
// domain.TimeoutReturnCode. A non-nil error means supervision itself failed;
// the returned Result then holds whatever output was collected.
func (a *Agent) Run(ctx context.Context) (*Result, error) {
	if a.Command == "" {
		return nil, fmt.Errorf("agent %s: no executor command configured", a.Name)
	}

	cmd := exec.Command(a.Command, a.Args...)
	cmd.Dir = a.Dir
	cmd.Env = a.Env
	configureCommandProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	res := &Result{StartedAt: time.Now()}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", a.Command, err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	readLines := func(r io.Reader, stream Stream, dst *[]string) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		// Increase buffer size for long JSON lines
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			*dst = append(*dst, line)
			mu.Unlock()
			if a.OnLine != nil {
				a.OnLine(stream, line)
			}
		}
		// Keep the pipe drained after an oversized line so the child never blocks on write
		io.Copy(io.Discard, r)
	}

	go readLines(stdout, StreamStdout, &res.Stdout)
	go readLines(stderr, StreamStderr, &res.Stderr)

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if a.Timeout > 0 {
		timer := time.NewTimer(a.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timeout:
		terminateCommandProcess(cmd)
		<-done
		res.FinishedAt = time.Now()
		res.TimedOut = true
		res.ReturnCode = domain.TimeoutReturnCode
		return res, nil
	case <-ctx.Done():
		terminateCommandProcess(cmd)
		<-done
		res.FinishedAt = time.Now()
		res.ReturnCode = domain.TransportReturnCode
		return res, ctx.Err()
	}
	res.FinishedAt = time.Now()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			res.ReturnCode = domain.TransportReturnCode
			return res, fmt.Errorf("waiting for %s: %w", a.Command, waitErr)
		}
		res.ReturnCode = exitErr.ExitCode()
		if res.ReturnCode < 0 {
			// Killed by a signal from outside
			res.ReturnCode = 1
		}
	}

	return res, nil
}
