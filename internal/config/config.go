package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Executor      ExecutorConfig      `toml:"executor"`
	Run           RunConfig           `toml:"run"`
	Governance    GovernanceConfig    `toml:"governance"`
	Notifications NotificationsConfig `toml:"notifications"`
	Repositories  []RepositoryConfig  `toml:"repository"`
	Schedules     []ScheduleConfig    `toml:"schedule"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	WorktreeDir  string `toml:"worktree_dir"`
	ReportsDir   string `toml:"reports_dir"`
	LedgerPath   string `toml:"ledger_path"`
	DatabasePath string `toml:"database_path"`
	LogLevel     string `toml:"log_level"`
}

// ExecutorConfig describes how to launch the code-change executor
type ExecutorConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// RunConfig holds the run-time options of a pass. CLI flags override these.
type RunConfig struct {
	TimeoutSeconds          int  `toml:"timeout_seconds"`
	ForceRerun              bool `toml:"force_rerun"`
	AllowDirty              bool `toml:"allow_dirty"`
	UseWorktree             bool `toml:"use_worktree"`
	AutoRollback            bool `toml:"auto_rollback"`
	AutoQualityRepair       bool `toml:"auto_quality_repair"`
	QualityRetryMax         int  `toml:"quality_retry_max"`
	ProgressIntervalSeconds int  `toml:"progress_interval_seconds"`
}

// Timeout returns the child timeout as a duration
func (r RunConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ProgressInterval returns the progress line period
func (r RunConfig) ProgressInterval() time.Duration {
	return time.Duration(r.ProgressIntervalSeconds) * time.Second
}

// GovernanceConfig lists the files forming the policy fingerprint
type GovernanceConfig struct {
	Root                string   `toml:"root"`
	Files               []string `toml:"files"`
	ExpectedFingerprint string   `toml:"expected_fingerprint"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// RepositoryConfig is one target repository profile
type RepositoryConfig struct {
	Name            string   `toml:"name"`
	Root            string   `toml:"root"`
	DefaultBranch   string   `toml:"default_branch"`
	BoardPath       string   `toml:"board_path"`
	DependencyLinks []string `toml:"dependency_links"`
	QualityCommand  string   `toml:"quality_command"`
	RepairCommands  []string `toml:"repair_commands"`
}

// ScheduleConfig is a briefing run on a cron schedule
type ScheduleConfig struct {
	Name     string   `toml:"name"`
	Cron     string   `toml:"cron"`
	Briefing string   `toml:"briefing"`
	Targets  []string `toml:"targets"`
	Mode     string   `toml:"mode"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".squad-orch")
	return &Config{
		General: GeneralConfig{
			WorktreeDir:  filepath.Join(base, "worktrees"),
			ReportsDir:   filepath.Join(base, "reports"),
			LedgerPath:   filepath.Join(base, "execution_ledger.jsonl"),
			DatabasePath: filepath.Join(base, "journal.db"),
			LogLevel:     "INFO",
		},
		Run: RunConfig{
			TimeoutSeconds:          1800,
			UseWorktree:             true,
			AutoRollback:            true,
			QualityRetryMax:         1,
			ProgressIntervalSeconds: 15,
		},
		Governance: GovernanceConfig{
			Files: []string{"product.md", "steering.md"},
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.WorktreeDir = ExpandPath(cfg.General.WorktreeDir)
	cfg.General.ReportsDir = ExpandPath(cfg.General.ReportsDir)
	cfg.General.LedgerPath = ExpandPath(cfg.General.LedgerPath)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Governance.Root = ExpandPath(cfg.Governance.Root)
	for i := range cfg.Repositories {
		cfg.Repositories[i].Root = ExpandPath(cfg.Repositories[i].Root)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for obvious mistakes
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	roots := make(map[string]string)
	for _, r := range c.Repositories {
		if r.Name == "" {
			return fmt.Errorf("repository entry without name")
		}
		if r.Root == "" {
			return fmt.Errorf("repository %s: root is required", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("repository %s declared twice", r.Name)
		}
		seen[r.Name] = true
		root := filepath.Clean(r.Root)
		if other, ok := roots[root]; ok {
			return fmt.Errorf("repositories %s and %s share root %s", other, r.Name, root)
		}
		roots[root] = r.Name
	}
	if c.Run.TimeoutSeconds < 0 {
		return fmt.Errorf("run.timeout_seconds must not be negative")
	}
	if c.Run.QualityRetryMax < 0 {
		return fmt.Errorf("run.quality_retry_max must not be negative")
	}
	for _, s := range c.Schedules {
		if _, ok := domain.ParseExecutionMode(s.Mode); !ok {
			return fmt.Errorf("schedule %s: unknown mode %q", s.Name, s.Mode)
		}
	}
	return nil
}

// Repository returns the profile for name
func (c *Config) Repository(name string) (domain.Repository, bool) {
	for _, r := range c.Repositories {
		if r.Name == name {
			return r.toDomain(), true
		}
	}
	return domain.Repository{}, false
}

// RepositoryNames returns the configured repository names in declaration order
func (c *Config) RepositoryNames() []string {
	names := make([]string, 0, len(c.Repositories))
	for _, r := range c.Repositories {
		names = append(names, r.Name)
	}
	return names
}

func (r RepositoryConfig) toDomain() domain.Repository {
	branch := r.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return domain.Repository{
		Name:            r.Name,
		Root:            r.Root,
		DefaultBranch:   branch,
		BoardPath:       r.BoardPath,
		DependencyLinks: append([]string(nil), r.DependencyLinks...),
		QualityCommand:  r.QualityCommand,
		RepairCommands:  append([]string(nil), r.RepairCommands...),
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// LocalConfigName is the per-workspace config file searched for upwards from the cwd
const LocalConfigName = ".squad-orch.toml"

// FindLocalConfig walks up from the working directory looking for LocalConfigName.
// Returns "" when none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads path if given, else the nearest local config,
// else the user config.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "squad-orch", "config.toml")
}
