package batch

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/config"
	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// BatchConfig is one briefing run on a cron schedule
type BatchConfig struct {
	Name        string
	Cron        string
	Briefing    string
	Targets     []string
	Mode        domain.ExecutionMode
	MaxDuration time.Duration
}

// Validate checks if the config is valid
func (c *BatchConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("schedule %s: cron expression is required", c.Name)
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("schedule %s: invalid cron expression: %w", c.Name, err)
	}
	if c.Briefing == "" {
		return fmt.Errorf("schedule %s: briefing is required", c.Name)
	}
	if c.Mode == "" {
		c.Mode = domain.ModeRun
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 4 * time.Hour // Default
	}
	return nil
}

// Request converts the schedule into a run request
func (c BatchConfig) Request() domain.RunRequest {
	return domain.RunRequest{
		Briefing: c.Briefing,
		Mode:     c.Mode,
		Targets:  append([]string(nil), c.Targets...),
	}
}

// FromConfig converts the [[schedule]] entries of the main configuration
func FromConfig(schedules []config.ScheduleConfig) ([]BatchConfig, error) {
	out := make([]BatchConfig, 0, len(schedules))
	for _, s := range schedules {
		mode, ok := domain.ParseExecutionMode(s.Mode)
		if !ok {
			return nil, fmt.Errorf("schedule %s: unknown mode %q", s.Name, s.Mode)
		}
		cfg := BatchConfig{
			Name:     s.Name,
			Cron:     s.Cron,
			Briefing: s.Briefing,
			Targets:  s.Targets,
			Mode:     mode,
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}
