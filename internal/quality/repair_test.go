//go:build !windows

package quality

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

func setupGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"git", "init", "-b", "main"},
		{"git", "config", "user.email", "test@test.com"},
		{"git", "config", "user.name", "Test"},
		{"git", "commit", "--allow-empty", "-m", "Initial commit"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("%v failed: %s", args, out)
		}
	}
	return dir
}

var taskB8 = domain.ResolvedTask{ID: "B8", Source: domain.SourceExplicit}

func TestRepair_FixesAndCommits(t *testing.T) {
	dir := setupGitRepo(t)
	repo := domain.Repository{
		Name:           "auraxis-api",
		QualityCommand: "test -f formatted.txt",
		RepairCommands: []string{"echo ok > formatted.txt"},
	}

	res, err := (&Repairer{}).Repair(context.Background(), repo, taskB8, dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed || res.Attempts != 1 {
		t.Errorf("Result = %+v", res)
	}
	if res.Commit == "" {
		t.Error("repair changes should be committed")
	}
	if _, err := os.Stat(filepath.Join(dir, "formatted.txt")); err != nil {
		t.Error(err)
	}
}

func TestRepair_GivesUpAfterMaxAttempts(t *testing.T) {
	dir := setupGitRepo(t)
	repo := domain.Repository{
		Name:           "auraxis-web",
		QualityCommand: "echo attempt >> attempts.log; exit 1",
	}

	res, err := (&Repairer{}).Repair(context.Background(), repo, taskB8, dir, 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed || res.Attempts != 3 || res.ReturnCode != 1 {
		t.Errorf("Result = %+v", res)
	}
	if res.Commit != "" {
		t.Error("failed repair must not commit")
	}
	data, _ := os.ReadFile(filepath.Join(dir, "attempts.log"))
	if string(data) != "attempt\nattempt\nattempt\n" {
		t.Errorf("attempts.log = %q", data)
	}
}

func TestRepair_PassingWithoutChangesDoesNotCommit(t *testing.T) {
	dir := setupGitRepo(t)
	repo := domain.Repository{Name: "auraxis-app", QualityCommand: "true"}

	res, err := (&Repairer{}).Repair(context.Background(), repo, taskB8, dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed || res.Commit != "" {
		t.Errorf("Result = %+v", res)
	}
}

func TestRepair_RequiresQualityCommand(t *testing.T) {
	if _, err := (&Repairer{}).Repair(context.Background(), domain.Repository{Name: "x"}, taskB8, t.TempDir(), 1); err == nil {
		t.Error("expected error without quality command")
	}
}
