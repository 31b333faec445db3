package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/report"
	"github.com/signalnine/clutterbench/internal/result"
)

var (
	flagFormat string
	flagWrite  bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate reports from stored run checkpoints",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dirs, err := sweepDirsFromArgs(args)
			if err != nil {
				return err
			}
			for i, dir := range dirs {
				if i > 0 {
					fmt.Println()
				}
				if flagWrite {
					if err := rewriteReport(dir); err != nil {
						return err
					}
				}
				if err := report.Generate(dir, flagFormat, os.Stdout, report.Options{}); err != nil {
					return fmt.Errorf("%s: %w", dir, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagWrite, "write", false, "also rewrite report.md and summary.json in each sweep dir")
	return cmd
}

// sweepDirsFromArgs resolves the run directory argument, defaulting to the
// latest run of the configured results dir, into its sweep directories.
func sweepDirsFromArgs(args []string) (string, []string, error) {
	var runDir string
	if len(args) > 0 {
		runDir = args[0]
	} else {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return "", nil, err
		}
		runDir = filepath.Join(cfg.Results.Dir, "latest")
	}
	resolved, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving run dir: %w", err)
	}
	dirs, err := result.FindSweepDirs(resolved)
	if err != nil {
		return "", nil, err
	}
	if len(dirs) == 0 {
		return "", nil, fmt.Errorf("no sweeps found in %s", resolved)
	}
	return resolved, dirs, nil
}

func rewriteReport(dir string) error {
	m, err := result.ReadManifest(dir)
	if err != nil {
		return err
	}
	pairs, err := result.ReadRuns(dir)
	if err != nil {
		return err
	}
	return report.WriteFiles(dir, m, pairs, report.Options{GeneratedAt: time.Now()})
}
