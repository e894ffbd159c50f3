// Package policy computes and validates the governance-file fingerprint.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FingerprintLength is the number of hex characters kept from the digest
const FingerprintLength = 16

// DriftError reports a fingerprint mismatch
type DriftError struct {
	Expected string
	Actual   string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("policy drift: expected fingerprint %s, got %s", e.Expected, e.Actual)
}

// Validator hashes a fixed list of governance files
type Validator struct {
	root  string
	files []string
}

// NewValidator creates a Validator. Relative file names are resolved against root.
func NewValidator(root string, files []string) *Validator {
	return &Validator{root: root, files: append([]string(nil), files...)}
}

// Compute hashes the concatenated bytes of the governance files.
// Missing files are skipped.
func (v *Validator) Compute() (string, error) {
	h := sha256.New()
	for _, name := range v.files {
		path := name
		if !filepath.IsAbs(path) && v.root != "" {
			path = filepath.Join(v.root, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("reading governance file %s: %w", name, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:FingerprintLength], nil
}

// Validate compares the current fingerprint with expected.
// An empty expected value always passes.
func (v *Validator) Validate(expected string) (string, error) {
	actual, err := v.Compute()
	if err != nil {
		return "", err
	}
	if expected == "" || expected == actual {
		return actual, nil
	}
	return actual, &DriftError{Expected: expected, Actual: actual}
}
