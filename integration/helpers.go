//go:build integration

package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// binaryPath builds the CLI once per test binary run
func binaryPath(t *testing.T) string {
	t.Helper()
	abs, _ := filepath.Abs("../squad-orch")
	if _, err := os.Stat(abs); err == nil {
		return abs
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", abs, "../cmd/squad-orch")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}
	return abs
}

// setupGitRepo creates a committed repository with a task board
func setupGitRepo(t *testing.T, board string) string {
	t.Helper()
	dir := t.TempDir()

	os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test\n"), 0644)
	if board != "" {
		os.WriteFile(filepath.Join(dir, "TASKS.md"), []byte(board), 0644)
	}

	for _, args := range [][]string{
		{"git", "init", "-b", "main"},
		{"git", "config", "user.email", "test@test.com"},
		{"git", "config", "user.name", "Test"},
		{"git", "add", "."},
		{"git", "commit", "-m", "Initial commit"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("%v failed: %s", args, out)
		}
	}
	return dir
}

// writeExecutor writes a fake executor shell script
func writeExecutor(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "executor.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// workspace is a config file plus the directories it points at
type workspace struct {
	ConfigPath string
	ReportsDir string
	Repos      map[string]string
}

// createWorkspace writes a config with one [[repository]] per name
func createWorkspace(t *testing.T, executor string, repos map[string]string) workspace {
	t.Helper()
	base := t.TempDir()
	ws := workspace{
		ConfigPath: filepath.Join(base, "config.toml"),
		ReportsDir: filepath.Join(base, "reports"),
		Repos:      repos,
	}

	var b strings.Builder
	fmt.Fprintf(&b, `[general]
worktree_dir = %q
reports_dir = %q
ledger_path = %q
database_path = %q

[executor]
command = %q

[run]
timeout_seconds = 20
use_worktree = true
auto_rollback = true
progress_interval_seconds = 0

[governance]
root = %q
files = ["product.md"]

[notifications]
desktop = false
`,
		filepath.Join(base, "worktrees"),
		ws.ReportsDir,
		filepath.Join(base, "ledger.jsonl"),
		filepath.Join(base, "journal.db"),
		executor,
		base,
	)
	for name, root := range repos {
		fmt.Fprintf(&b, "\n[[repository]]\nname = %q\nroot = %q\n", name, root)
	}

	if err := os.WriteFile(ws.ConfigPath, []byte(b.String()), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return ws
}

// run executes the CLI and returns combined output and exit code
func run(t *testing.T, ws workspace, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(binaryPath(t), append([]string{"--config", ws.ConfigPath}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), exitErr.ExitCode()
		}
		t.Fatalf("running %v: %v", args, err)
	}
	return string(out), 0
}
