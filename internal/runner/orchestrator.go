package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/latency"
	"github.com/signalnine/clutterbench/internal/logging"
	"github.com/signalnine/clutterbench/internal/metrics"
	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/result"
)

// ErrInterrupted is returned, together with every run that completed, when
// the sweep context ends before all runs finished.
var ErrInterrupted = errors.New("sweep interrupted")

// Orchestrator drives paired baseline/treatment executions of a sweep.
type Orchestrator struct {
	// NewRunner creates the environment for one run. Required.
	NewRunner  episode.Factory
	Classifier *outcome.Classifier
	Latency    *latency.Collector
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// Parallel bounds how many runs execute at once. Episodes within a run
	// are always sequential.
	Parallel int
	// Checkpoint receives every run as soon as it completes.
	Checkpoint func(result.RunPair) error
	// Completed are runs finished by an earlier invocation; they are
	// returned as-is and not executed again.
	Completed []result.RunPair
	// Progress, when set, is called after every episode.
	Progress func(Invocation, result.Episode)
}

// RunSweep executes every pending run of s and returns all completed runs
// sorted by run index. The returned slice is valid even when err is
// non-nil: an interrupted sweep returns the runs that finished, and a run
// that could not start is reported in err without affecting the others.
// No episode is cancelled once started.
func (o *Orchestrator) RunSweep(ctx context.Context, s config.Sweep) ([]result.RunPair, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep %s: %w", s.Name(), err)
	}
	if o.NewRunner == nil {
		return nil, errors.New("orchestrator: no runner factory")
	}
	log := logging.OrNop(o.Logger).With(zap.String("sweep", s.Name()))
	classifier := o.Classifier
	if classifier == nil {
		classifier = outcome.NewClassifier(nil)
	}
	collector := o.Latency
	if collector == nil {
		collector = latency.NewCollector(nil, log)
	}

	done := make(map[int]bool, len(o.Completed))
	results := make([]result.RunPair, 0, s.Runs)
	for _, p := range o.Completed {
		if p.Run < 0 || p.Run >= s.Runs || p.Seed != s.Seeds[p.Run] {
			return nil, fmt.Errorf("checkpointed run %d (seed %d) does not belong to sweep %s", p.Run, p.Seed, s.Name())
		}
		if done[p.Run] {
			return nil, fmt.Errorf("run %d checkpointed twice", p.Run)
		}
		done[p.Run] = true
		results = append(results, p)
	}

	var (
		mu   sync.Mutex
		jobs []Job
	)
	for run := range s.Runs {
		if done[run] {
			log.Info("skipping checkpointed run", zap.Int("run", run))
			continue
		}
		jobs = append(jobs, func(ctx context.Context) error {
			pair, complete, err := o.runOne(ctx, s, run, classifier, collector, log)
			if err != nil {
				return err
			}
			if !complete {
				log.Warn("discarding incomplete run", zap.Int("run", run))
				return nil
			}
			o.Metrics.RunCompleted()
			var cpErr error
			if o.Checkpoint != nil {
				if cpErr = o.Checkpoint(pair); cpErr != nil {
					cpErr = fmt.Errorf("checkpointing run %d: %w", run, cpErr)
				}
			}
			mu.Lock()
			results = append(results, pair)
			mu.Unlock()
			return cpErr
		})
	}

	errs := RunPool(ctx, o.Parallel, jobs)
	result.SortRuns(results)
	if ctx.Err() != nil {
		errs = append(errs, fmt.Errorf("%w after %d of %d runs: %w", ErrInterrupted, len(results), s.Runs, ctx.Err()))
	}
	return results, errors.Join(errs...)
}

// runOne executes every episode of one run on a dedicated environment.
// complete is false when ctx ended between episodes.
func (o *Orchestrator) runOne(ctx context.Context, s config.Sweep, run int, classifier *outcome.Classifier, collector *latency.Collector, log *zap.Logger) (result.RunPair, bool, error) {
	log = log.With(zap.Int("run", run), zap.Int64("seed", s.Seeds[run]))
	r, err := o.NewRunner(run)
	if err != nil {
		return result.RunPair{}, false, fmt.Errorf("creating environment for run %d: %w", run, err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	pair := result.RunPair{Run: run, Seed: s.Seeds[run]}
	for _, m := range episode.Methods {
		*pair.Method(m) = result.RunResult{
			Run:      run,
			Seed:     s.Seeds[run],
			Method:   m,
			Episodes: make([]result.Episode, 0, s.EpisodesPerRun),
		}
	}

	log.Info("starting run")
	// Episodes run to completion once started.
	episodeCtx := context.WithoutCancel(ctx)
	for _, inv := range planRun(s, run) {
		if ctx.Err() != nil {
			return result.RunPair{}, false, nil
		}
		ep := o.execute(episodeCtx, r, s, inv, classifier, collector, log)
		rr := pair.Method(inv.Method)
		rr.Episodes = append(rr.Episodes, ep)
		if o.Progress != nil {
			o.Progress(inv, ep)
		}
	}
	log.Info("run complete",
		zap.Float64("baseline_sr", pair.Baseline.SuccessRate()),
		zap.Float64("treatment_sr", pair.Treatment.SuccessRate()))
	return pair, true, nil
}

// execute runs and classifies one episode. It never fails: an environment
// failure becomes a synthetic never_reached outcome.
func (o *Orchestrator) execute(ctx context.Context, r episode.Runner, s config.Sweep, inv Invocation, classifier *outcome.Classifier, collector *latency.Collector, log *zap.Logger) result.Episode {
	log = log.With(zap.Int("episode", inv.Episode), zap.String("method", string(inv.Method)))
	ep := result.Episode{Index: inv.Episode}

	start := time.Now()
	tr, err := r.RunEpisode(ctx, inv.Request(s))
	elapsed := time.Since(start)

	switch {
	case err != nil:
		log.Warn("episode failed, recording never_reached", zap.Error(err))
		ep.Outcome = outcome.EnvironmentFailure()
		ep.Error = err.Error()
	default:
		if tr.Method != "" && tr.Method != string(inv.Method) {
			log.Warn("trace reports a different method", zap.String("trace_method", tr.Method))
		}
		ep.Outcome = classifier.Classify(tr)
		if len(tr.Issues) > 0 {
			log.Warn("trace has defects", zap.Strings("issues", tr.Issues))
			ep.Issues = tr.Issues
		}
		if !tr.Completed() {
			ep.Error = fmt.Sprintf("environment %s: %s", tr.Status, tr.Error)
		} else {
			ep.Latency = collector.Collect(inv.Method, tr)
		}
	}
	log.Debug("episode classified",
		zap.String("failure_mode", string(ep.Outcome.FailureMode)),
		zap.Int("collisions", ep.Outcome.CollisionCount),
		zap.Duration("elapsed", elapsed))
	o.Metrics.ObserveEpisode(string(inv.Method), string(ep.Outcome.FailureMode), elapsed, ep.Error != "")
	return ep
}
