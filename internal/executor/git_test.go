package executor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsClean(t *testing.T) {
	dir := setupGitRepo(t)

	clean, err := IsClean(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !clean {
		t.Error("fresh repo should be clean")
	}

	os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0644)
	if clean, _ := IsClean(dir); clean {
		t.Error("untracked file should make repo dirty")
	}
}

func TestRollback(t *testing.T) {
	dir := setupGitRepo(t)
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("changed"), 0644)
	os.MkdirAll(filepath.Join(dir, "junk"), 0755)
	os.WriteFile(filepath.Join(dir, "junk", "file.txt"), []byte("x"), 0644)

	if err := Rollback(dir); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "README.md"))
	if string(data) != "# Test" {
		t.Errorf("README.md = %q, want reset content", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "junk")); !os.IsNotExist(err) {
		t.Error("untracked directory should be removed")
	}
}

func TestCommitAll(t *testing.T) {
	dir := setupGitRepo(t)
	before, _ := HeadCommit(dir)

	hash, err := CommitAll(dir, "nothing")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "" {
		t.Errorf("CommitAll on clean tree = %q, want empty", hash)
	}

	os.WriteFile(filepath.Join(dir, "fix.txt"), []byte("fixed"), 0644)
	hash, err = CommitAll(dir, "style: auto repair")
	if err != nil {
		t.Fatal(err)
	}
	after, _ := HeadCommit(dir)
	if hash == "" || after == before {
		t.Fatalf("expected a new commit, got %q", hash)
	}
	if after[:len(hash)] != hash {
		t.Errorf("short hash %s does not prefix HEAD %s", hash, after)
	}
}
