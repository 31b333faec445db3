package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/result"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured sweeps and stored results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			sweeps, err := cfg.Expand(config.Overrides{})
			if err != nil {
				return err
			}
			fmt.Printf("Runner: %s", cfg.Runner.Kind)
			if cfg.Runner.Kind == "docker" {
				fmt.Printf(" (image: %s)", cfg.Runner.Image)
			}
			fmt.Printf("\nHard-success rule: %s\n", cfg.HardSuccess.Rule)
			fmt.Println("\nSweeps:")
			for _, s := range sweeps {
				fmt.Printf("  - %s [%s] runs=%d episodes=%d seeds=%v distractors=%s\n",
					s.Name(), s.ID(), s.Runs, s.EpisodesPerRun, s.Seeds, config.FormatDistractors(s.Distractors))
			}

			if _, err := os.Stat(cfg.Results.Dir); err != nil {
				return nil
			}
			dirs, err := result.FindSweepDirs(cfg.Results.Dir)
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				return nil
			}
			fmt.Println("\nStored results:")
			for _, dir := range dirs {
				m, err := result.ReadManifest(dir)
				if err != nil {
					fmt.Printf("  - %s (unreadable: %v)\n", dir, err)
					continue
				}
				runs, err := result.ReadRuns(dir)
				if err != nil {
					fmt.Printf("  - %s (unreadable: %v)\n", dir, err)
					continue
				}
				fmt.Printf("  - %s  %s %d/%d runs\n", dir, m.Sweep.Name(), len(runs), m.Sweep.Runs)
			}
			return nil
		},
	}
}
