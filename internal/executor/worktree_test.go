package executor

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

func setupGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cmds := [][]string{
		{"git", "init", "-b", "main"},
		{"git", "config", "user.email", "test@test.com"},
		{"git", "config", "user.name", "Test"},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("%v failed: %s", args, out)
		}
	}

	// Create initial commit
	readme := filepath.Join(dir, "README.md")
	os.WriteFile(readme, []byte("# Test"), 0644)

	cmd := exec.Command("git", "add", ".")
	cmd.Dir = dir
	cmd.Run()

	cmd = exec.Command("git", "commit", "-m", "Initial commit")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("initial commit failed: %s", out)
	}

	return dir
}

func testRepo(t *testing.T) domain.Repository {
	t.Helper()
	return domain.Repository{Name: "auraxis-api", Root: setupGitRepo(t), DefaultBranch: "main"}
}

func TestWorktreeManager_Create(t *testing.T) {
	repo := testRepo(t)
	mgr := NewWorktreeManager(t.TempDir())

	wt, err := mgr.Create(repo)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Destroy(repo, wt)

	if _, err := os.Stat(filepath.Join(wt.Path, "README.md")); err != nil {
		t.Errorf("worktree not checked out: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(wt.Path), "auraxis-api-") {
		t.Errorf("worktree name = %s, want auraxis-api- prefix", filepath.Base(wt.Path))
	}
	if wt.State != domain.WorktreeCreating {
		t.Errorf("State = %s, want creating", wt.State)
	}
	if wt.BaseRef != "main" {
		t.Errorf("BaseRef = %s, want main (no origin remote)", wt.BaseRef)
	}

	// Detached: no branch was created in the source repo
	out, _ := git(repo.Root, "branch", "--list")
	if strings.Count(out, "\n") > 0 {
		t.Errorf("unexpected branches: %s", out)
	}
}

func TestWorktreeManager_UniquePaths(t *testing.T) {
	repo := testRepo(t)
	mgr := NewWorktreeManager(t.TempDir())

	a, err := mgr.Create(repo)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Destroy(repo, a)
	b, err := mgr.Create(repo)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Destroy(repo, b)

	if a.Path == b.Path {
		t.Errorf("two worktrees share path %s", a.Path)
	}
}

func TestWorktreeManager_HydrateLinksDependencies(t *testing.T) {
	repo := testRepo(t)
	if err := os.MkdirAll(filepath.Join(repo.Root, "node_modules", "left-pad"), 0755); err != nil {
		t.Fatal(err)
	}
	repo.DependencyLinks = []string{"node_modules"}
	mgr := NewWorktreeManager(t.TempDir())

	wt, err := mgr.Prepare(repo)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Destroy(repo, wt)

	if wt.State != domain.WorktreeReady {
		t.Errorf("State = %s, want ready", wt.State)
	}
	target, err := os.Readlink(filepath.Join(wt.Path, "node_modules"))
	if err != nil {
		t.Fatalf("node_modules not linked: %v", err)
	}
	if target != filepath.Join(repo.Root, "node_modules") {
		t.Errorf("link target = %s", target)
	}
	if len(wt.Links) != 1 {
		t.Errorf("Links = %v", wt.Links)
	}
}

func TestWorktreeManager_HydrateFailsClosed(t *testing.T) {
	repo := testRepo(t)
	repo.DependencyLinks = []string{".venv"}
	scratch := t.TempDir()
	mgr := NewWorktreeManager(scratch)

	wt, err := mgr.Prepare(repo)
	var hydrationErr *HydrationError
	if !errors.As(err, &hydrationErr) {
		t.Fatalf("err = %v, want HydrationError", err)
	}
	if wt != nil {
		t.Error("no worktree should be returned on hydration failure")
	}

	entries, _ := os.ReadDir(scratch)
	if len(entries) != 0 {
		t.Errorf("scratch root not empty after failed hydration: %v", entries)
	}
	paths, _ := mgr.List(repo)
	if len(paths) != 0 {
		t.Errorf("worktree still registered: %v", paths)
	}
}

func TestWorktreeManager_DestroyIdempotent(t *testing.T) {
	repo := testRepo(t)
	mgr := NewWorktreeManager(t.TempDir())

	wt, err := mgr.Prepare(repo)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(wt.Path, "scratch.txt"), []byte("dirty"), 0644)

	if err := mgr.Destroy(repo, wt); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(wt.Path); !os.IsNotExist(err) {
		t.Error("worktree directory still exists")
	}
	if wt.State != domain.WorktreeRemoved {
		t.Errorf("State = %s, want removed", wt.State)
	}
	if err := mgr.Destroy(repo, wt); err != nil {
		t.Errorf("second Destroy: %v", err)
	}
}

func TestWorktreeManager_DestroyKeepsLinkTargets(t *testing.T) {
	repo := testRepo(t)
	dep := filepath.Join(repo.Root, ".venv")
	os.MkdirAll(dep, 0755)
	os.WriteFile(filepath.Join(dep, "marker"), []byte("x"), 0644)
	repo.DependencyLinks = []string{".venv"}
	mgr := NewWorktreeManager(t.TempDir())

	wt, err := mgr.Prepare(repo)
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Destroy(repo, wt); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dep, "marker")); err != nil {
		t.Errorf("dependency in source checkout was removed: %v", err)
	}
}

func TestWorktreeManager_ListAndPrune(t *testing.T) {
	repo := testRepo(t)
	mgr := NewWorktreeManager(t.TempDir())

	for i := 0; i < 2; i++ {
		if _, err := mgr.Create(repo); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := mgr.List(repo)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("List() = %v, want 2 entries", paths)
	}

	removed, err := mgr.Prune(repo)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 {
		t.Errorf("Prune() removed %v", removed)
	}
	if paths, _ := mgr.List(repo); len(paths) != 0 {
		t.Errorf("List() after prune = %v", paths)
	}
}

func TestCanTransitionWorktree(t *testing.T) {
	tests := []struct {
		from, to domain.WorktreeState
		want     bool
	}{
		{domain.WorktreeCreating, domain.WorktreeHydrating, true},
		{domain.WorktreeHydrating, domain.WorktreeRemoving, true},
		{domain.WorktreeReady, domain.WorktreeRemoving, true},
		{domain.WorktreeRemoving, domain.WorktreeRemoved, true},
		{domain.WorktreeRemoved, domain.WorktreeReady, false},
		{domain.WorktreeCreating, domain.WorktreeReady, false},
	}
	for _, tt := range tests {
		if got := CanTransitionWorktree(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionWorktree(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
