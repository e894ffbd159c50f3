package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupGovernance(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "product.md"), []byte("# Product\n"), 0644)
	os.WriteFile(filepath.Join(root, "steering.md"), []byte("# Steering\n"), 0644)
	return root
}

func TestCompute_Stable(t *testing.T) {
	root := setupGovernance(t)
	v := NewValidator(root, []string{"product.md", "steering.md"})

	a, err := v.Compute()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := v.Compute()
	if a != b {
		t.Errorf("fingerprint not stable: %s vs %s", a, b)
	}
	if len(a) != FingerprintLength {
		t.Errorf("len = %d, want %d", len(a), FingerprintLength)
	}
}

func TestCompute_ChangesWithContent(t *testing.T) {
	root := setupGovernance(t)
	v := NewValidator(root, []string{"product.md", "steering.md"})

	before, _ := v.Compute()
	os.WriteFile(filepath.Join(root, "steering.md"), []byte("# Steering v2\n"), 0644)
	after, _ := v.Compute()

	if before == after {
		t.Error("fingerprint should change when a governance file changes")
	}
}

func TestCompute_MissingFilesSkipped(t *testing.T) {
	root := setupGovernance(t)
	with := NewValidator(root, []string{"product.md", "steering.md", "absent.md"})
	without := NewValidator(root, []string{"product.md", "steering.md"})

	a, err := with.Compute()
	if err != nil {
		t.Fatalf("missing file should not be fatal: %v", err)
	}
	b, _ := without.Compute()
	if a != b {
		t.Errorf("missing file changed fingerprint: %s vs %s", a, b)
	}
}

func TestValidate(t *testing.T) {
	root := setupGovernance(t)
	v := NewValidator(root, []string{"product.md", "steering.md"})
	current, _ := v.Compute()

	if _, err := v.Validate(""); err != nil {
		t.Errorf("empty expected should pass: %v", err)
	}
	if _, err := v.Validate(current); err != nil {
		t.Errorf("matching expected should pass: %v", err)
	}

	actual, err := v.Validate("0000000000000000")
	var drift *DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("err = %v, want DriftError", err)
	}
	if drift.Expected != "0000000000000000" || drift.Actual != current || actual != current {
		t.Errorf("drift = %+v, actual = %s", drift, actual)
	}
}
