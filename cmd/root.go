package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/clutterbench/internal/logging"
)

var (
	cfgFile     string
	flagVerbose bool
	flagLogJSON bool

	logger = zap.NewNop()
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clutterbench",
		Short:         "Paired baseline/treatment evaluation of a manipulation policy under clutter",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(logging.Options{Verbose: flagVerbose, JSON: flagLogJSON})
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "clutterbench.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log as JSON")
	root.AddCommand(newRunCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newRescoreCmd())
	root.AddCommand(newPublishCmd())
	return root
}
