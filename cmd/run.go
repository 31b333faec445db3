package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/latency"
	"github.com/signalnine/clutterbench/internal/metrics"
	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/report"
	"github.com/signalnine/clutterbench/internal/result"
	"github.com/signalnine/clutterbench/internal/runner"
)

const episodesDir = "episodes"

var (
	flagParallel    int
	flagDryRun      bool
	flagResume      string
	flagMetricsAddr string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute paired evaluation sweeps",
		RunE:  runSweeps,
	}
	addSweepFlags(cmd)
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent runs (one environment each)")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print the invocation plan without executing")
	cmd.Flags().StringVar(&flagResume, "resume", "", "resume an interrupted run directory")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runSweeps(cmd *cobra.Command, args []string) error {
	cfg, sweeps, err := loadSweeps()
	if err != nil {
		return err
	}
	if flagDryRun {
		return printPlan(cmd.OutOrStdout(), sweeps, false)
	}
	rule, err := outcome.ParseRule(cfg.HardSuccess.Rule, cfg.HardSuccess.MaxCollisions)
	if err != nil {
		return err
	}

	runDir := flagResume
	if runDir == "" {
		runDir, err = result.CreateRunDir(cfg.Results.Dir)
		if err != nil {
			return err
		}
	} else if runDir, err = filepath.EvalSymlinks(runDir); err != nil {
		return fmt.Errorf("resolving run dir: %w", err)
	}
	fmt.Printf("Run directory: %s\n", runDir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if flagMetricsAddr != "" {
		m = metrics.New()
		metricsCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := m.Serve(metricsCtx, flagMetricsAddr, logger); err != nil {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	sr := &sweepRunner{
		cfg:        cfg,
		runDir:     runDir,
		resume:     flagResume != "",
		classifier: outcome.NewClassifier(rule),
		latency:    latency.NewCollector(cfg.LatencyStages, logger),
		metrics:    m,
	}
	var failed int
	for i, s := range sweeps {
		if ctx.Err() != nil {
			break
		}
		fmt.Printf("\n=== Sweep %d/%d: %s (%s) ===\n", i+1, len(sweeps), s.Name(), s.ID())
		err := sr.run(ctx, s)
		if errors.Is(err, runner.ErrInterrupted) {
			fmt.Printf("Interrupted: partial results kept. Resume with --resume %s\n", runDir)
			return err
		}
		if err != nil {
			failed++
			fmt.Printf("  ERROR: %v\n", err)
		}
	}
	if ctx.Err() != nil {
		fmt.Printf("Interrupted. Resume with --resume %s\n", runDir)
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sweeps failed", failed, len(sweeps))
	}
	return nil
}

type sweepRunner struct {
	cfg        *config.Config
	runDir     string
	resume     bool
	classifier *outcome.Classifier
	latency    *latency.Collector
	metrics    *metrics.Metrics
}

func (r *sweepRunner) run(ctx context.Context, s config.Sweep) error {
	dir := result.SweepDir(r.runDir, s)
	m := &result.Manifest{
		ID:              s.ID(),
		Sweep:           s,
		HardSuccessRule: r.classifier.Rule().Name(),
		LatencyStages:   r.cfg.LatencyStages,
	}

	var completed []result.RunPair
	if r.resume {
		var err error
		if completed, err = loadCheckpoints(dir, m); err != nil {
			return err
		}
		if len(completed) > 0 {
			fmt.Printf("  resuming with %d/%d runs checkpointed\n", len(completed), s.Runs)
		}
	}
	if err := result.WriteManifest(dir, m); err != nil {
		return err
	}

	o := &runner.Orchestrator{
		NewRunner:  runnerFactory(r.cfg.Runner, filepath.Join(dir, episodesDir)),
		Classifier: r.classifier,
		Latency:    r.latency,
		Logger:     logger,
		Metrics:    r.metrics,
		Parallel:   flagParallel,
		Checkpoint: func(p result.RunPair) error {
			fmt.Printf("  run %d (seed %d) complete: baseline %.1f%%, treatment %.1f%%\n",
				p.Run, p.Seed, p.Baseline.SuccessRate(), p.Treatment.SuccessRate())
			return result.WriteRun(dir, &p)
		},
		Completed: completed,
		Progress: func(inv runner.Invocation, ep result.Episode) {
			logger.Debug("episode done", zap.Stringer("invocation", inv),
				zap.String("failure_mode", string(ep.Outcome.FailureMode)))
		},
	}
	pairs, runErr := o.RunSweep(ctx, s)
	if len(pairs) == 0 {
		return runErr
	}

	if err := report.WriteFiles(dir, m, pairs, report.Options{GeneratedAt: time.Now()}); err != nil {
		return errors.Join(runErr, err)
	}
	fmt.Printf("  report: %s\n\n", filepath.Join(dir, report.FileName))
	if err := report.Generate(dir, "table", os.Stdout, report.Options{}); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// loadCheckpoints returns the runs already stored for the sweep described
// by m. A directory written for a different sweep or rule is rejected.
func loadCheckpoints(dir string, m *result.Manifest) ([]result.RunPair, error) {
	prev, err := result.ReadManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if prev.ID != m.ID {
		return nil, fmt.Errorf("sweep %s changed since it was checkpointed (id %s, now %s)", m.Sweep.Name(), prev.ID, m.ID)
	}
	if prev.HardSuccessRule != m.HardSuccessRule {
		return nil, fmt.Errorf("checkpoints use hard-success rule %s, config says %s; run rescore first", prev.HardSuccessRule, m.HardSuccessRule)
	}
	return result.ReadRuns(dir)
}

func runnerFactory(rc config.Runner, workspace string) episode.Factory {
	return func(run int) (episode.Runner, error) {
		switch rc.Kind {
		case "exec":
			return &episode.ExecRunner{
				Command:   rc.Command,
				Env:       rc.Env,
				Timeout:   rc.Timeout(),
				Workspace: workspace,
			}, nil
		case "docker", "":
			return &episode.DockerRunner{
				Image:       rc.Image,
				Command:     rc.Command,
				Env:         rc.Env,
				Timeout:     rc.Timeout(),
				GPUs:        rc.GPUs,
				CPULimit:    rc.CPULimit,
				MemoryLimit: rc.MemoryLimit,
				Workspace:   workspace,
			}, nil
		default:
			return nil, fmt.Errorf("unknown runner kind %q", rc.Kind)
		}
	}
}
