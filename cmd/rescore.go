package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/report"
	"github.com/signalnine/clutterbench/internal/result"
	"github.com/signalnine/clutterbench/internal/runner"
)

var (
	flagRule          string
	flagMaxCollisions int
)

func newRescoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescore [run-dir]",
		Short: "Re-classify stored episodes under a different hard-success rule",
		Long:  "Walk a run directory, re-classify every episode from its stored trace with the given hard-success rule, and rewrite the run checkpoints and reports.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := outcome.ParseRule(flagRule, flagMaxCollisions)
			if err != nil {
				return err
			}
			classifier := outcome.NewClassifier(rule)
			_, dirs, err := sweepDirsFromArgs(args)
			if err != nil {
				return err
			}
			for _, dir := range dirs {
				m, err := result.ReadManifest(dir)
				if err != nil {
					return err
				}
				pairs, err := result.ReadRuns(dir)
				if err != nil {
					return err
				}
				rescored, reread := runner.Rescore(m.Sweep, pairs, filepath.Join(dir, episodesDir), classifier, logger)
				for i := range rescored {
					if err := result.WriteRun(dir, &rescored[i]); err != nil {
						return err
					}
				}
				prev := m.HardSuccessRule
				m.HardSuccessRule = rule.Name()
				if err := result.WriteManifest(dir, m); err != nil {
					return err
				}
				if err := report.WriteFiles(dir, m, rescored, report.Options{GeneratedAt: time.Now()}); err != nil {
					return err
				}
				logger.Info("rescored sweep", zap.String("dir", dir), zap.String("from", prev), zap.String("to", m.HardSuccessRule))
				fmt.Printf("%s: %d runs rescored (%s -> %s), %d traces re-read\n",
					m.Sweep.Name(), len(rescored), prev, m.HardSuccessRule, reread)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagRule, "rule", "zero_collision", "hard-success rule (zero_collision, success_only, max_collisions)")
	cmd.Flags().IntVar(&flagMaxCollisions, "max-collisions", 0, "collision limit for the max_collisions rule")
	return cmd
}
