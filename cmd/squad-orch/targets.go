package main

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/hochfrequenz/squad-orchestrator/internal/config"
)

// selectTargets expands --repo names and globs against the configured
// repositories, keeping declaration order. No patterns selects everything.
func selectTargets(cfg *config.Config, patterns []string) ([]string, error) {
	names := cfg.RepositoryNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("no repositories configured")
	}
	if len(patterns) == 0 {
		return names, nil
	}

	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid --repo pattern %q: %w", pattern, err)
		}
		matched := false
		for _, name := range names {
			if g.Match(name) {
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("--repo %q matches no configured repository", pattern)
		}
		matchers = append(matchers, g)
	}

	var selected []string
	for _, name := range names {
		for _, g := range matchers {
			if g.Match(name) {
				selected = append(selected, name)
				break
			}
		}
	}
	return selected, nil
}
