package executor

import (
	"fmt"
	"os/exec"
	"strings"
)

// git runs a git subcommand in dir and returns its trimmed combined output
func git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// IsClean reports whether the checkout has no staged, unstaged or untracked changes
func IsClean(dir string) (bool, error) {
	out, err := git(dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %s: %w", out, err)
	}
	return out == "", nil
}

// HeadCommit returns the full hash of HEAD
func HeadCommit(dir string) (string, error) {
	out, err := git(dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %s: %w", out, err)
	}
	return out, nil
}

// Rollback hard-resets the checkout to its last commit and removes untracked files
func Rollback(dir string) error {
	if out, err := git(dir, "reset", "--hard", "HEAD"); err != nil {
		return fmt.Errorf("git reset: %s: %w", out, err)
	}
	if out, err := git(dir, "clean", "-fd"); err != nil {
		return fmt.Errorf("git clean: %s: %w", out, err)
	}
	return nil
}

// CommitAll stages everything and commits it. Returns the new short hash,
// or "" when there was nothing to commit.
func CommitAll(dir, message string) (string, error) {
	clean, err := IsClean(dir)
	if err != nil {
		return "", err
	}
	if clean {
		return "", nil
	}
	if out, err := git(dir, "add", "-A"); err != nil {
		return "", fmt.Errorf("git add: %s: %w", out, err)
	}
	if out, err := git(dir, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("git commit: %s: %w", out, err)
	}
	out, err := git(dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %s: %w", out, err)
	}
	return out, nil
}
