package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/config"
	"github.com/hochfrequenz/squad-orchestrator/internal/dispatch"
	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/hochfrequenz/squad-orchestrator/internal/ledger"
	"github.com/hochfrequenz/squad-orchestrator/internal/logging"
	"github.com/hochfrequenz/squad-orchestrator/internal/notify"
	"github.com/hochfrequenz/squad-orchestrator/internal/parser"
	"github.com/hochfrequenz/squad-orchestrator/internal/policy"
	"github.com/hochfrequenz/squad-orchestrator/internal/report"
	"github.com/hochfrequenz/squad-orchestrator/internal/resolver"
	"github.com/hochfrequenz/squad-orchestrator/internal/runstore"
	"github.com/spf13/cobra"
)

var (
	targetPatterns    []string
	briefingFile      string
	runForce          bool
	runAllowDirty     bool
	runTimeout        time.Duration
	runNoWorktree     bool
	runNoRollback     bool
	runQualityRepair  bool
	runQualityRetries int
	runProgress       time.Duration
	fingerprintCheck  string
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run [BRIEFING...]",
		Short: "Run the executor against the target repositories",
		RunE:  runRun,
	}
	addTargetFlags(runCmd)
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)

	// plan command
	planCmd := &cobra.Command{
		Use:   "plan [BRIEFING...]",
		Short: "Produce plans only; no worktrees, commits or rollback",
		RunE:  runPlan,
	}
	addTargetFlags(planCmd)
	planCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-repository wall-clock timeout (overrides run.timeout_seconds)")
	planCmd.Flags().DurationVar(&runProgress, "progress-interval", 0, "progress line period, 0 to disable")
	rootCmd.AddCommand(planCmd)

	// resolve command
	resolveCmd := &cobra.Command{
		Use:   "resolve [BRIEFING...]",
		Short: "Show which task each repository would be bound to",
		RunE:  runResolve,
	}
	addTargetFlags(resolveCmd)
	rootCmd.AddCommand(resolveCmd)

	// fingerprint command
	fingerprintCmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the governance policy fingerprint",
		RunE:  runFingerprint,
	}
	fingerprintCmd.Flags().StringVar(&fingerprintCheck, "check", "", "fail if the fingerprint differs from this value")
	rootCmd.AddCommand(fingerprintCmd)
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&targetPatterns, "repo", nil, "target repository name or glob (repeatable, default all)")
	cmd.Flags().StringVar(&briefingFile, "briefing-file", "", "read the briefing from a file")
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&runForce, "force", false, "ignore the ledger and rerun finished work")
	cmd.Flags().BoolVar(&runAllowDirty, "allow-dirty", false, "do not block on uncommitted changes")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-repository wall-clock timeout (overrides run.timeout_seconds)")
	cmd.Flags().BoolVar(&runNoWorktree, "no-worktree", false, "run in the shared checkout instead of an isolated worktree")
	cmd.Flags().BoolVar(&runNoRollback, "no-rollback", false, "keep a blocked shared checkout as the executor left it")
	cmd.Flags().BoolVar(&runQualityRepair, "quality-repair", false, "try the repository repair commands when only the quality gate failed")
	cmd.Flags().IntVar(&runQualityRetries, "quality-retries", 1, "maximum quality repair attempts")
	cmd.Flags().DurationVar(&runProgress, "progress-interval", 0, "progress line period, 0 to disable")
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

// applyRunFlags lets explicitly set flags override the [run] section.
// Durations are stored in whole seconds, rounded up.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("force") {
		cfg.Run.ForceRerun = runForce
	}
	if flags.Changed("allow-dirty") {
		cfg.Run.AllowDirty = runAllowDirty
	}
	if flags.Changed("timeout") {
		// 0 would mean no wall-clock limit at all
		if runTimeout < time.Second {
			return fmt.Errorf("--timeout must be at least 1s, got %s", runTimeout)
		}
		cfg.Run.TimeoutSeconds = wholeSeconds(runTimeout)
	}
	if flags.Changed("no-worktree") {
		cfg.Run.UseWorktree = !runNoWorktree
	}
	if flags.Changed("no-rollback") {
		cfg.Run.AutoRollback = !runNoRollback
	}
	if flags.Changed("quality-repair") {
		cfg.Run.AutoQualityRepair = runQualityRepair
	}
	if flags.Changed("quality-retries") {
		cfg.Run.QualityRetryMax = runQualityRetries
	}
	if flags.Changed("progress-interval") {
		if runProgress < 0 || (runProgress > 0 && runProgress < time.Second) {
			return fmt.Errorf("--progress-interval must be 0 or at least 1s, got %s", runProgress)
		}
		cfg.Run.ProgressIntervalSeconds = wholeSeconds(runProgress)
	}
	return nil
}

func wholeSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// readBriefing joins the positional arguments or reads --briefing-file
func readBriefing(args []string) (string, error) {
	if briefingFile != "" {
		data, err := os.ReadFile(briefingFile)
		if err != nil {
			return "", fmt.Errorf("reading briefing: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	briefing := strings.TrimSpace(strings.Join(args, " "))
	if briefing == "" {
		return "", fmt.Errorf("a briefing is required (arguments or --briefing-file)")
	}
	return briefing, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	return runPass(cmd, args, domain.ModeRun)
}

func runPlan(cmd *cobra.Command, args []string) error {
	return runPass(cmd, args, domain.ModePlanOnly)
}

func runPass(cmd *cobra.Command, args []string, mode domain.ExecutionMode) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	briefing, err := readBriefing(args)
	if err != nil {
		return err
	}
	targets, err := selectTargets(cfg, targetPatterns)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := executePass(ctx, cfg, domain.RunRequest{
		Briefing:   briefing,
		Mode:       mode,
		Targets:    targets,
		Force:      cfg.Run.ForceRerun,
		AllowDirty: cfg.Run.AllowDirty,
	})
	if err != nil {
		return err
	}
	if code := rep.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// executePass dispatches one request and persists, prints and announces the report
func executePass(ctx context.Context, cfg *config.Config, req domain.RunRequest) (*domain.Report, error) {
	if cfg.Executor.Command == "" {
		return nil, fmt.Errorf("executor.command is not configured")
	}

	logger, err := logging.NewLogger(cfg.General.ReportsDir, cfg.General.LogLevel)
	if err != nil {
		return nil, err
	}
	defer logger.Close()

	l, err := ledger.Open(cfg.General.LedgerPath)
	if err != nil {
		return nil, err
	}

	journal, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		// The journal is informational; a pass runs without it
		logger.Warn("run journal unavailable", "error", err.Error())
		fmt.Fprintf(os.Stderr, "Warning: run journal unavailable: %v\n", err)
		journal = nil
	} else {
		defer journal.Close()
	}

	fmt.Printf("Briefing %s, mode %s, targets: %s\n", ledger.BriefingHash(req.Briefing)[:8], req.Mode, strings.Join(req.Targets, ", "))

	d := dispatch.New(cfg, l, journal, logger, os.Stdout)
	rep, err := d.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	path, err := report.Write(cfg.General.ReportsDir, rep)
	if err != nil {
		logger.Error("writing report failed", "error", err.Error())
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	report.PrintSummary(os.Stdout, rep, path)

	if err := notify.New(cfg.Notifications).Send(notify.FromReport(rep, path)); err != nil {
		logger.Warn("notification failed", "error", err.Error())
	}
	return rep, nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	briefing, err := readBriefing(args)
	if err != nil {
		return err
	}
	targets, err := selectTargets(cfg, targetPatterns)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPO\tTASK\tSOURCE\tBOARD")
	for _, name := range targets {
		repo, _ := cfg.Repository(name)
		task := resolver.Resolve(repo, briefing)
		board := parser.FindBoard(repo)
		if board == "" {
			board = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, task, task.Source, board)
	}
	return w.Flush()
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v := policy.NewValidator(cfg.Governance.Root, cfg.Governance.Files)
	expected := fingerprintCheck
	if expected == "" {
		expected = cfg.Governance.ExpectedFingerprint
	}

	actual, err := v.Validate(expected)
	if actual != "" {
		fmt.Println(actual)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return &exitError{code: 1}
	}
	return nil
}
