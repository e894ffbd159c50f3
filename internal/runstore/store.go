// Package runstore is the SQLite journal of orchestration phases.
package runstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// Phase names a point in a pass or run lifecycle
type Phase string

const (
	PhaseMultiRunStart Phase = "multi-run-start"
	PhaseMultiRunEnd   Phase = "multi-run-end"
	PhaseRunStart      Phase = "run-start"
	PhaseRunEnd        Phase = "run-end"
	PhaseRunException  Phase = "run-exception"
)

// StatusInProgress is recorded for start phases
const StatusInProgress = "in_progress"

// Event is one journal row
type Event struct {
	ID        int64
	PassID    string
	RunID     string
	Repo      string
	TaskID    string
	Phase     Phase
	Status    string
	Mode      domain.ExecutionMode
	Details   string
	CreatedAt time.Time
}

// Store provides SQLite-backed journal persistence
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the journal at dbPath. ":memory:" is accepted.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Concurrent runs write through one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends an event
func (s *Store) Record(ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO run_events (pass_id, run_id, repo, task_id, phase, status, mode, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.PassID,
		ev.RunID,
		ev.Repo,
		ev.TaskID,
		string(ev.Phase),
		ev.Status,
		string(ev.Mode),
		ev.Details,
		ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording %s event: %w", ev.Phase, err)
	}
	return nil
}

// ListOptions filters Recent
type ListOptions struct {
	Repo  string
	Limit int
}

// Recent returns the newest events first
func (s *Store) Recent(opts ListOptions) ([]Event, error) {
	query := `SELECT id, pass_id, run_id, repo, task_id, phase, status, mode, details, created_at FROM run_events`
	var args []any
	if opts.Repo != "" {
		query += ` WHERE repo = ?`
		args = append(args, opts.Repo)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	return s.query(query, args...)
}

// Pass returns the events of one pass in insertion order
func (s *Store) Pass(passID string) ([]Event, error) {
	return s.query(`
		SELECT id, pass_id, run_id, repo, task_id, phase, status, mode, details, created_at
		FROM run_events WHERE pass_id = ? ORDER BY id
	`, passID)
}

func (s *Store) query(query string, args ...any) ([]Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var phase, mode string
		if err := rows.Scan(&ev.ID, &ev.PassID, &ev.RunID, &ev.Repo, &ev.TaskID, &phase, &ev.Status, &mode, &ev.Details, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Phase = Phase(phase)
		ev.Mode = domain.ExecutionMode(mode)
		events = append(events, ev)
	}
	return events, rows.Err()
}
