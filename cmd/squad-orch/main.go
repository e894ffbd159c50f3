package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "squad-orch",
		Short: "Squad Orchestrator - multi-repository code-change runs",
		Long: `Squad Orchestrator runs an external code-change executor against several
repositories at once. It resolves the task each run is bound to, gates runs on
policy and working-tree state, isolates them in git worktrees, skips work the
ledger already proves done, and classifies every run as done, blocked or skipped.`,
		SilenceUsage: true,
	}
)

// exitError carries a process exit code without printing anything further
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
