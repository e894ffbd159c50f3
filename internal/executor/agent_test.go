//go:build !windows

package executor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

func shellAgent(script string) *Agent {
	return &Agent{
		Name:    "test",
		Command: "/bin/sh",
		Args:    []string{"-c", script},
	}
}

func TestAgent_CapturesOutput(t *testing.T) {
	a := shellAgent("echo one; echo two >&2; echo three")

	var mu sync.Mutex
	var seen []string
	a.OnLine = func(stream Stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(stream)+":"+line)
	}

	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.ReturnCode != 0 {
		t.Errorf("ReturnCode = %d, want 0", res.ReturnCode)
	}
	if strings.Join(res.Stdout, ",") != "one,three" {
		t.Errorf("Stdout = %v", res.Stdout)
	}
	if strings.Join(res.Stderr, ",") != "two" {
		t.Errorf("Stderr = %v", res.Stderr)
	}
	if len(seen) != 3 {
		t.Errorf("OnLine saw %v", seen)
	}
}

func TestAgent_NonZeroExit(t *testing.T) {
	res, err := shellAgent("exit 3").Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.ReturnCode != 3 {
		t.Errorf("ReturnCode = %d, want 3", res.ReturnCode)
	}
}

func TestAgent_Timeout(t *testing.T) {
	a := shellAgent("echo started; sleep 30")
	a.Timeout = 200 * time.Millisecond

	start := time.Now()
	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.TimedOut {
		t.Error("TimedOut should be set")
	}
	if res.ReturnCode != domain.TimeoutReturnCode {
		t.Errorf("ReturnCode = %d, want %d", res.ReturnCode, domain.TimeoutReturnCode)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}
	if len(res.Stdout) != 1 || res.Stdout[0] != "started" {
		t.Errorf("output before timeout lost: %v", res.Stdout)
	}
}

func TestAgent_TimeoutKillsGrandchildren(t *testing.T) {
	// The backgrounded sleep inherits stdout; without a group kill the drain would hang
	a := shellAgent("sleep 30 & sleep 30")
	a.Timeout = 200 * time.Millisecond

	done := make(chan struct{})
	go func() {
		a.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after timeout")
	}
}

func TestAgent_PrivateEnv(t *testing.T) {
	a := shellAgent(`echo "$SQUAD_TARGET_REPO"`)
	a.Env = []string{"PATH=/usr/bin:/bin", "SQUAD_TARGET_REPO=auraxis-api"}

	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stdout) != 1 || res.Stdout[0] != "auraxis-api" {
		t.Errorf("Stdout = %v", res.Stdout)
	}
}

func TestAgent_StartFailure(t *testing.T) {
	a := &Agent{Name: "x", Command: "/nonexistent/executor"}
	if _, err := a.Run(context.Background()); err == nil {
		t.Error("expected error for missing executor binary")
	}
	if _, err := (&Agent{Name: "x"}).Run(context.Background()); err == nil {
		t.Error("expected error for empty command")
	}
}
