package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/hochfrequenz/squad-orchestrator/internal/batch"
	"github.com/hochfrequenz/squad-orchestrator/internal/config"
	"github.com/spf13/cobra"
)

var scheduleList bool

func init() {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the [[schedule]] briefings on their cron schedules",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().BoolVar(&scheduleList, "list", false, "print the schedules and their next run, then exit")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	batches, err := batch.FromConfig(cfg.Schedules)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		return fmt.Errorf("no [[schedule]] entries configured")
	}
	// Concrete names let the scheduler keep batches with shared repositories apart
	for i := range batches {
		targets, err := selectTargets(cfg, batches[i].Targets)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", batches[i].Name, err)
		}
		batches[i].Targets = targets
	}
	sched, err := batch.NewScheduler(batches)
	if err != nil {
		return err
	}

	for _, name := range sched.ListBatches() {
		b, _ := sched.GetConfig(name)
		next := sched.NextRun(name)
		fmt.Printf("%s (%s, %s): next run %s (%s)\n", name, b.Cron, b.Mode, next.Format("2006-01-02 15:04"), humanize.Time(next))
	}
	if scheduleList {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Scheduler running, Ctrl-C to stop")
	sched.Start(ctx, func(ctx context.Context, b batch.BatchConfig) error {
		return runBatch(ctx, cfg, b)
	})
	return nil
}

// runBatch dispatches one scheduled briefing. The ledger makes repeats of
// finished work cheap skips.
func runBatch(ctx context.Context, cfg *config.Config, b batch.BatchConfig) error {
	targets, err := selectTargets(cfg, b.Targets)
	if err != nil {
		return err
	}
	req := b.Request()
	req.Targets = targets
	req.Force = cfg.Run.ForceRerun
	req.AllowDirty = cfg.Run.AllowDirty

	fmt.Printf("[schedule] %s started\n", b.Name)
	rep, err := executePass(ctx, cfg, req)
	if err != nil {
		return err
	}
	if _, blocked, _ := rep.Counts(); blocked > 0 {
		return fmt.Errorf("%d repositories blocked", blocked)
	}
	return nil
}
