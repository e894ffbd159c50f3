package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/hochfrequenz/squad-orchestrator/internal/ledger"
	"github.com/hochfrequenz/squad-orchestrator/internal/report"
	"github.com/hochfrequenz/squad-orchestrator/internal/runstore"
	"github.com/spf13/cobra"
)

var (
	historyRepo  string
	historyTask  string
	historyLimit int
	statusRepo   string
	statusLimit  int
)

func init() {
	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show ledger entries, newest first",
		RunE:  runHistory,
	}
	historyCmd.Flags().StringVar(&historyRepo, "repo", "", "filter by repository")
	historyCmd.Flags().StringVar(&historyTask, "task", "", "filter by task id")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")
	rootCmd.AddCommand(historyCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent run journal events",
		RunE:  runStatus,
	}
	statusCmd.Flags().StringVar(&statusRepo, "repo", "", "filter by repository")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum events to show")
	rootCmd.AddCommand(statusCmd)

	// reports command
	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "List orchestration reports",
		RunE:  runReports,
	}
	rootCmd.AddCommand(reportsCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := ledger.Open(cfg.General.LedgerPath)
	if err != nil {
		return err
	}
	entries, err := l.Entries(ledger.Filter{Repo: historyRepo, TaskID: historyTask})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No ledger entries")
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tREPO\tTASK\tMODE\tSTATUS\tRC\tDURATION\tCOMMITS\tBRIEFING")
	for _, e := range entries {
		commits := "-"
		if len(e.CommitHashes) > 0 {
			commits = strings.Join(e.CommitHashes, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			humanize.Time(e.Timestamp),
			e.Repo,
			e.TaskID,
			e.ExecutionMode,
			e.Status,
			e.ReturnCode,
			time.Duration(e.DurationSeconds*float64(time.Second)).Round(time.Second),
			commits,
			shortHash(e.BriefingHash),
		)
	}
	return w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Recent(runstore.ListOptions{Repo: statusRepo, Limit: statusLimit})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tPHASE\tREPO\tTASK\tMODE\tSTATUS\tDETAILS")
	for _, ev := range events {
		repo := ev.Repo
		if repo == "" {
			repo = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(ev.CreatedAt),
			ev.Phase,
			repo,
			ev.TaskID,
			ev.Mode,
			ev.Status,
			oneLine(ev.Details, 60),
		)
	}
	return w.Flush()
}

func runReports(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := report.List(cfg.General.ReportsDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No reports")
		return nil
	}

	type row struct {
		path    string
		summary report.Summary
	}
	var rows []row
	for _, path := range paths {
		s, err := report.ReadSummary(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			continue
		}
		rows = append(rows, row{path: path, summary: s})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].summary.GeneratedAt.After(rows[j].summary.GeneratedAt)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GENERATED\tBRIEFING\tMODE\tDONE\tBLOCKED\tSKIPPED\tEXIT\tPATH")
	for _, r := range rows {
		s := r.summary
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			humanize.Time(s.GeneratedAt),
			shortHash(s.BriefingHash),
			s.Mode,
			s.Done,
			s.Blocked,
			s.Skipped,
			s.ExitCode,
			r.path,
		)
	}
	return w.Flush()
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func oneLine(s string, n int) string {
	return ansi.Truncate(strings.Join(strings.Fields(s), " "), n, "...")
}
