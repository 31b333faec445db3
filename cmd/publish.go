package cmd

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/clutterbench/internal/objectstore"
	"github.com/signalnine/clutterbench/internal/result"
)

var flagPrefix string

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [run-dir]",
		Short: "Upload reports and checkpoints to an S3-compatible bucket",
		Long:  "Upload each sweep's report, summary, manifest and run checkpoints. The bucket is configured through CLUTTERBENCH_S3_* environment variables.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := objectstore.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("object store config: %w", err)
			}
			runDir, dirs, err := sweepDirsFromArgs(args)
			if err != nil {
				return err
			}
			client, err := objectstore.NewClient(cfg)
			if err != nil {
				return fmt.Errorf("object store client: %w", err)
			}
			ctx := cmd.Context()
			if err := objectstore.EnsureBucket(ctx, client, cfg); err != nil {
				return err
			}

			for _, dir := range dirs {
				m, err := result.ReadManifest(dir)
				if err != nil {
					return err
				}
				prefix := path.Join(publishPrefix(runDir), m.Sweep.Name())
				keys, err := objectstore.Publish(ctx, client, cfg.Bucket, dir, prefix)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d objects -> s3://%s/%s/\n", m.Sweep.Name(), len(keys), cfg.Bucket, prefix)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagPrefix, "prefix", "", "object key prefix (default: run directory name)")
	return cmd
}

func publishPrefix(runDir string) string {
	if flagPrefix != "" {
		return flagPrefix
	}
	return filepath.Base(runDir)
}
