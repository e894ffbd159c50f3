package main

import (
	"fmt"

	"github.com/hochfrequenz/squad-orchestrator/internal/executor"
	"github.com/spf13/cobra"
)

func init() {
	worktreesCmd := &cobra.Command{
		Use:   "worktrees",
		Short: "Inspect or clean up run worktrees left under the scratch root",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered run worktrees",
		RunE:  runWorktreesList,
	}
	listCmd.Flags().StringSliceVar(&targetPatterns, "repo", nil, "repository name or glob (repeatable, default all)")
	worktreesCmd.AddCommand(listCmd)

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove every run worktree, e.g. after a crash",
		RunE:  runWorktreesPrune,
	}
	pruneCmd.Flags().StringSliceVar(&targetPatterns, "repo", nil, "repository name or glob (repeatable, default all)")
	worktreesCmd.AddCommand(pruneCmd)

	rootCmd.AddCommand(worktreesCmd)
}

func runWorktreesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	targets, err := selectTargets(cfg, targetPatterns)
	if err != nil {
		return err
	}

	mgr := executor.NewWorktreeManager(cfg.General.WorktreeDir)
	total := 0
	for _, name := range targets {
		repo, _ := cfg.Repository(name)
		paths, err := mgr.List(repo)
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			continue
		}
		for _, p := range paths {
			fmt.Printf("%s\t%s\n", name, p)
		}
		total += len(paths)
	}
	if total == 0 {
		fmt.Println("No run worktrees")
	}
	return nil
}

func runWorktreesPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	targets, err := selectTargets(cfg, targetPatterns)
	if err != nil {
		return err
	}

	mgr := executor.NewWorktreeManager(cfg.General.WorktreeDir)
	var failed bool
	for _, name := range targets {
		repo, _ := cfg.Repository(name)
		removed, err := mgr.Prune(repo)
		for _, p := range removed {
			fmt.Printf("Removed %s\n", p)
		}
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			failed = true
		}
	}
	if failed {
		return &exitError{code: 1}
	}
	return nil
}
