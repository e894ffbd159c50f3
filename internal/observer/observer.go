// Package observer tracks concurrent repository runs for progress lines and metrics.
package observer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// Observer records which runs are active and how finished runs went.
// It never influences the outcome of a run.
type Observer struct {
	total   int
	started time.Time
	now     func() time.Time

	running     map[string]time.Time
	completions []completion
	mu          sync.RWMutex
}

type completion struct {
	Repo        string
	Status      domain.OutcomeStatus
	Duration    time.Duration
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	TotalCompleted int
	TotalDone      int
	TotalBlocked   int
	TotalSkipped   int
	AvgDuration    time.Duration
}

// Progress is a point-in-time view of a pass
type Progress struct {
	Elapsed   time.Duration
	Completed int
	Total     int
	Running   []string
}

// String renders the progress line
func (p Progress) String() string {
	s := fmt.Sprintf("[progress] %s elapsed, %d/%d completed", p.Elapsed.Round(time.Second), p.Completed, p.Total)
	if len(p.Running) > 0 {
		s += ", running: " + strings.Join(p.Running, ", ")
	}
	return s
}

// New creates an Observer for a pass over total repositories
func New(total int) *Observer {
	return &Observer{
		total:   total,
		started: time.Now(),
		now:     time.Now,
		running: make(map[string]time.Time),
	}
}

// RecordStart marks repo as running
func (o *Observer) RecordStart(repo string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running[repo] = o.now()
}

// RecordCompletion marks repo as finished
func (o *Observer) RecordCompletion(repo string, status domain.OutcomeStatus, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.running, repo)
	o.completions = append(o.completions, completion{
		Repo:        repo,
		Status:      status,
		Duration:    duration,
		CompletedAt: o.now(),
	})
}

// Snapshot returns the current progress
func (o *Observer) Snapshot() Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()

	p := Progress{
		Elapsed:   o.now().Sub(o.started),
		Completed: len(o.completions),
		Total:     o.total,
	}
	for repo := range o.running {
		p.Running = append(p.Running, repo)
	}
	sort.Strings(p.Running)
	return p
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration
	var timed int

	for _, c := range o.completions {
		metrics.TotalCompleted++
		switch c.Status {
		case domain.StatusDone:
			metrics.TotalDone++
		case domain.StatusBlocked:
			metrics.TotalBlocked++
		case domain.StatusSkipped:
			metrics.TotalSkipped++
		}
		if c.Duration > 0 {
			totalDuration += c.Duration
			timed++
		}
	}

	if timed > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(timed)
	}

	return metrics
}

// Report writes a progress line to w every interval until ctx is done
func (o *Observer) Report(ctx context.Context, interval time.Duration, w io.Writer) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintln(w, o.Snapshot().String())
		}
	}
}
