// Package batch runs briefings on cron schedules.
package batch

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// RunFunc executes one scheduled briefing
type RunFunc func(ctx context.Context, cfg BatchConfig) error

type entry struct {
	cfg      BatchConfig
	schedule cron.Schedule
	last     time.Time
	running  bool
}

// Scheduler fires batches whose next cron slot has passed.
// A batch never overlaps itself, and two batches sharing a target repository
// never run at the same time: the later one waits for a tick where its
// targets are free. Slots missed meanwhile are collapsed into one.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	started time.Time
	tick    time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewScheduler validates configs and parses their cron expressions once
func NewScheduler(configs []BatchConfig) (*Scheduler, error) {
	s := &Scheduler{
		entries: make(map[string]*entry, len(configs)),
		started: time.Now(),
		tick:    time.Minute,
		now:     time.Now,
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		schedule, _ := ParseCron(cfg.Cron)
		s.entries[cfg.Name] = &entry{cfg: cfg, schedule: schedule}
	}
	return s, nil
}

// NextRun returns the next slot of a batch, zero for unknown names
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return e.schedule.Next(s.now())
}

// Due reports whether a batch has a passed slot and is idle.
// Slots before the scheduler started do not count.
func (s *Scheduler) Due(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return ok && s.dueLocked(e)
}

func (s *Scheduler) dueLocked(e *entry) bool {
	if e.running {
		return false
	}
	since := e.last
	if since.IsZero() {
		since = s.started
	}
	return !s.now().Before(e.schedule.Next(since))
}

// claimDue marks due batches as running and returns their configs in name
// order. A due batch whose targets overlap a running batch is left for a later tick.
func (s *Scheduler) claimDue() []BatchConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var due []BatchConfig
	for _, name := range names {
		e := s.entries[name]
		if !s.dueLocked(e) || s.targetsBusyLocked(e) {
			continue
		}
		e.running = true
		due = append(due, e.cfg)
	}
	return due
}

func (s *Scheduler) targetsBusyLocked(e *entry) bool {
	for _, other := range s.entries {
		if other != e && other.running && sharesTarget(e.cfg.Targets, other.cfg.Targets) {
			return true
		}
	}
	return false
}

// sharesTarget treats an empty target list as every repository
func sharesTarget(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (s *Scheduler) finish(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.running = false
		e.last = s.now()
	}
}

// GetConfig returns the config for a batch
func (s *Scheduler) GetConfig(name string) (BatchConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return BatchConfig{}, false
	}
	return e.cfg, true
}

// ListBatches returns all batch names, sorted
func (s *Scheduler) ListBatches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start checks for due batches every tick until ctx is cancelled, then
// waits for the batches still running.
func (s *Scheduler) Start(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, cfg := range s.claimDue() {
			cfg := cfg
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.finish(cfg.Name)
				runCtx, cancel := context.WithTimeout(ctx, cfg.MaxDuration)
				defer cancel()
				if err := run(runCtx, cfg); err != nil {
					log.Printf("[schedule] %s failed: %v", cfg.Name, err)
				}
			}()
		}
	}
}
