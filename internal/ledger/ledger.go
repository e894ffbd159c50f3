// Package ledger is the append-only execution history used for idempotent reruns.
package ledger

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// BriefingHash returns the full SHA-256 of the briefing text
func BriefingHash(briefing string) string {
	sum := sha256.Sum256([]byte(briefing))
	return hex.EncodeToString(sum[:])
}

// Ledger is a newline-delimited JSON file. Entries are appended, never rewritten.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// Open returns a ledger backed by path, creating parent directories
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	return &Ledger{path: path}, nil
}

// Path returns the backing file
func (l *Ledger) Path() string {
	return l.path
}

// Append writes one entry as a single line in one write call
func (l *Ledger) Append(entry domain.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding ledger entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("appending ledger entry: %w", err)
	}
	return f.Close()
}

// Filter selects ledger entries. Empty fields match anything.
type Filter struct {
	Repo         string
	TaskID       string
	BriefingHash string
	Mode         domain.ExecutionMode
}

func (f Filter) matches(e domain.LedgerEntry) bool {
	if f.Repo != "" && e.Repo != f.Repo {
		return false
	}
	if f.TaskID != "" && !domain.SameTask(e.TaskID, f.TaskID) {
		return false
	}
	if f.BriefingHash != "" && e.BriefingHash != f.BriefingHash {
		return false
	}
	if f.Mode != "" && e.ExecutionMode != f.Mode {
		return false
	}
	return true
}

// Entries returns every matching entry in file order. Malformed lines are skipped.
func (l *Ledger) Entries(filter Filter) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	data, err := os.ReadFile(l.path)
	l.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	var entries []domain.LedgerEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e domain.LedgerEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if filter.matches(e) {
			entries = append(entries, e)
		}
	}
	return entries, scanner.Err()
}

// Latest returns the most recent entry for (repo, task, briefing hash), or nil
func (l *Ledger) Latest(repo, taskID, briefingHash string) (*domain.LedgerEntry, error) {
	return l.latest(Filter{Repo: repo, TaskID: taskID, BriefingHash: briefingHash})
}

// LatestRun is Latest restricted to run-mode entries so planning markers never mask real runs
func (l *Ledger) LatestRun(repo, taskID, briefingHash string) (*domain.LedgerEntry, error) {
	return l.latest(Filter{Repo: repo, TaskID: taskID, BriefingHash: briefingHash, Mode: domain.ModeRun})
}

func (l *Ledger) latest(filter Filter) (*domain.LedgerEntry, error) {
	entries, err := l.Entries(filter)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	// Append order is physical order; timestamps break ties from concurrent writers
	best := entries[len(entries)-1]
	for _, e := range entries {
		if e.Timestamp.After(best.Timestamp) {
			best = e
		}
	}
	return &best, nil
}

// ShouldSkip reports whether entry proves the work is already done
func ShouldSkip(entry *domain.LedgerEntry) bool {
	return entry != nil && entry.Status == domain.StatusDone && len(entry.CommitHashes) > 0
}
