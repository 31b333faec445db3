package cmd

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/signalnine/clutterbench/internal/config"
)

var (
	flagTask     string
	flagCategory string
	flagEpisodes int
	flagRuns     int
	flagSeeds    []int64
)

// addSweepFlags registers the flags that select and resize sweeps.
func addSweepFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagTask, "task", "", "filter to one task (glob)")
	cmd.Flags().StringVar(&flagCategory, "category", "", "filter by category (glob)")
	cmd.Flags().IntVar(&flagEpisodes, "episodes", 0, "override episodes per run")
	cmd.Flags().IntVar(&flagRuns, "runs", 0, "override number of runs")
	cmd.Flags().Int64SliceVar(&flagSeeds, "seeds", nil, "override seed list")
}

// loadSweeps loads the config and expands it into the selected sweeps.
func loadSweeps() (*config.Config, []config.Sweep, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	all, err := cfg.Expand(config.Overrides{EpisodesPerRun: flagEpisodes, Runs: flagRuns, Seeds: flagSeeds})
	if err != nil {
		return nil, nil, err
	}
	sweeps := filterSweeps(all, flagTask, flagCategory)
	if len(sweeps) == 0 {
		return nil, nil, fmt.Errorf("no sweep matches task %q category %q", flagTask, flagCategory)
	}
	return cfg, sweeps, nil
}

func filterSweeps(sweeps []config.Sweep, task, category string) []config.Sweep {
	var filtered []config.Sweep
	for _, s := range sweeps {
		if !matchPattern(s.Task, task) || !matchPattern(s.Category, category) {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

// matchPattern reports whether value matches a glob. An empty pattern
// matches everything.
func matchPattern(value, pattern string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}
