package executor

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// worktreeTransitions lists the legal lifecycle moves. Hydration failure goes
// straight to removing so no half-hydrated worktree is ever handed out.
var worktreeTransitions = map[domain.WorktreeState]map[domain.WorktreeState]bool{
	domain.WorktreeCreating: {
		domain.WorktreeHydrating: true,
		domain.WorktreeRemoving:  true,
	},
	domain.WorktreeHydrating: {
		domain.WorktreeReady:    true,
		domain.WorktreeRemoving: true,
	},
	domain.WorktreeReady: {
		domain.WorktreeRemoving: true,
	},
	domain.WorktreeRemoving: {
		domain.WorktreeRemoved: true,
	},
}

// CanTransitionWorktree reports whether a worktree may move from one state to another
func CanTransitionWorktree(from, to domain.WorktreeState) bool {
	if from == to {
		return true
	}
	return worktreeTransitions[from][to]
}

// HydrationError is returned when a dependency link cannot be attached
type HydrationError struct {
	Link string
	Err  error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("hydrating %s: %v", e.Link, e.Err)
}

func (e *HydrationError) Unwrap() error { return e.Err }

// WorktreeManager creates and destroys per-run git worktrees under one scratch root
type WorktreeManager struct {
	worktreeDir string
	now         func() time.Time
	mu          sync.Mutex
}

// NewWorktreeManager creates a new WorktreeManager
func NewWorktreeManager(worktreeDir string) *WorktreeManager {
	return &WorktreeManager{
		worktreeDir: worktreeDir,
		now:         time.Now,
	}
}

// Dir returns the scratch root
func (m *WorktreeManager) Dir() string {
	return m.worktreeDir
}

func (m *WorktreeManager) transition(wt *domain.Worktree, to domain.WorktreeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransitionWorktree(wt.State, to) {
		return fmt.Errorf("worktree %s: illegal transition %s -> %s", wt.Path, wt.State, to)
	}
	wt.State = to
	return nil
}

// Create adds a detached worktree of the repository's default branch
func (m *WorktreeManager) Create(repo domain.Repository) (*domain.Worktree, error) {
	if err := os.MkdirAll(m.worktreeDir, 0755); err != nil {
		return nil, fmt.Errorf("creating worktree dir: %w", err)
	}

	created := m.now()
	dirName := fmt.Sprintf("%s-%s-%s", sanitizeName(repo.Name), created.Format("20060102-150405"), randomSuffix())
	wt := &domain.Worktree{
		Path:       filepath.Join(m.worktreeDir, dirName),
		SourceRepo: repo.Root,
		CreatedAt:  created,
		State:      domain.WorktreeCreating,
	}

	// Fetch latest from origin first (if remote exists)
	git(repo.Root, "fetch", "origin", repo.DefaultBranch) // Ignore error - remote might not exist

	wt.BaseRef = resolveBaseRef(repo)

	if out, err := git(repo.Root, "worktree", "add", "--detach", wt.Path, wt.BaseRef); err != nil {
		return nil, fmt.Errorf("git worktree add: %s: %w", out, err)
	}

	return wt, nil
}

// resolveBaseRef picks origin/<default>, then <default>, then HEAD
func resolveBaseRef(repo domain.Repository) string {
	for _, ref := range []string{"origin/" + repo.DefaultBranch, repo.DefaultBranch} {
		if _, err := git(repo.Root, "rev-parse", "--verify", "--quiet", ref+"^{commit}"); err == nil {
			return ref
		}
	}
	return "HEAD"
}

// Hydrate links the repository's runtime dependencies into the worktree.
// A missing dependency fails closed.
func (m *WorktreeManager) Hydrate(repo domain.Repository, wt *domain.Worktree) error {
	if err := m.transition(wt, domain.WorktreeHydrating); err != nil {
		return err
	}

	for _, link := range repo.DependencyLinks {
		rel := filepath.Clean(link)
		if filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
			return &HydrationError{Link: link, Err: fmt.Errorf("dependency link must be relative to the repository root")}
		}
		src := filepath.Join(repo.Root, rel)
		if _, err := os.Stat(src); err != nil {
			return &HydrationError{Link: link, Err: err}
		}
		dst := filepath.Join(wt.Path, rel)
		if _, err := os.Lstat(dst); err == nil {
			// Tracked content already present in the checkout
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return &HydrationError{Link: link, Err: err}
		}
		if err := os.Symlink(src, dst); err != nil {
			return &HydrationError{Link: link, Err: err}
		}
		wt.Links = append(wt.Links, rel)
	}

	return m.transition(wt, domain.WorktreeReady)
}

// Prepare creates and hydrates a worktree. On hydration failure the worktree
// is destroyed before the error is returned.
func (m *WorktreeManager) Prepare(repo domain.Repository) (*domain.Worktree, error) {
	wt, err := m.Create(repo)
	if err != nil {
		return nil, err
	}
	if err := m.Hydrate(repo, wt); err != nil {
		m.Destroy(repo, wt)
		return nil, err
	}
	return wt, nil
}

// Destroy force-removes the worktree and prunes stale registrations.
// Safe to call more than once.
func (m *WorktreeManager) Destroy(repo domain.Repository, wt *domain.Worktree) error {
	if wt == nil {
		return nil
	}
	if wt.State == domain.WorktreeRemoved {
		return nil
	}
	if err := m.transition(wt, domain.WorktreeRemoving); err != nil {
		return err
	}

	var firstErr error
	if _, err := os.Stat(wt.Path); err == nil {
		// Symlinks are removed by git, never their targets
		if out, err := git(repo.Root, "worktree", "remove", "--force", wt.Path); err != nil {
			firstErr = fmt.Errorf("git worktree remove: %s: %w", out, err)
		}
	}
	if err := os.RemoveAll(wt.Path); err != nil && firstErr == nil {
		firstErr = err
	}
	git(repo.Root, "worktree", "prune") // Ignore error

	if _, err := os.Stat(wt.Path); err == nil {
		return fmt.Errorf("worktree %s still present after removal: %v", wt.Path, firstErr)
	}
	return m.transition(wt, domain.WorktreeRemoved)
}

// List returns the registered worktree paths of repo under the scratch root
func (m *WorktreeManager) List(repo domain.Repository) ([]string, error) {
	out, err := git(repo.Root, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	root := filepath.Clean(m.worktreeDir) + string(filepath.Separator)
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			path := strings.TrimPrefix(line, "worktree ")
			// Only include worktrees in our worktree directory
			if strings.HasPrefix(filepath.Clean(path), root) {
				paths = append(paths, path)
			}
		}
	}

	return paths, nil
}

// Prune removes every worktree of repo left under the scratch root, e.g. after a crash
func (m *WorktreeManager) Prune(repo domain.Repository) ([]string, error) {
	paths, err := m.List(repo)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, path := range paths {
		wt := &domain.Worktree{Path: path, SourceRepo: repo.Root, State: domain.WorktreeReady}
		if err := m.Destroy(repo, wt); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	git(repo.Root, "worktree", "prune")
	return removed, nil
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, name)
}

func randomSuffix() string {
	b := make([]byte, 3)
	rand.Read(b)
	return hex.EncodeToString(b)
}
