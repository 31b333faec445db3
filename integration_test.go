//go:build integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/result"
	"github.com/signalnine/clutterbench/internal/runner"
	"github.com/signalnine/clutterbench/internal/stats"
)

// episodeScript writes a trace in which treatment always succeeds and
// baseline misses the grasp on odd episodes.
const episodeScript = `if [ "$METHOD" = treatment ] || [ $((EPISODE % 2)) -eq 0 ]; then s=true; else s=false; fi
printf '{"status":"completed","seed":%s,"episode":%s,"method":"%s","success":%s,"reached":true,"grasped":%s,"contacts":[{"step":3,"body":"apple"}]}' "$SEED" "$EPISODE" "$METHOD" "$s" "$s" > "$TRACE_OUT"
`

func TestDockerSweepIntegration(t *testing.T) {
	if os.Getenv("CLUTTERBENCH_DOCKER_TESTS") == "" {
		t.Skip("set CLUTTERBENCH_DOCKER_TESTS=1 to run integration tests")
	}

	resultsDir := t.TempDir()
	runDir, err := result.CreateRunDir(resultsDir)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}

	s, err := config.NewSweep("pick_coke_can", "semantic",
		[]config.Distractor{{ObjectID: "apple", SpawnProbability: 1}},
		2, 2, []int64{0, 1}, "opaque-checkpoint")
	if err != nil {
		t.Fatalf("NewSweep: %v", err)
	}
	sweepDir := result.SweepDir(runDir, s)

	o := &runner.Orchestrator{
		NewRunner: func(int) (episode.Runner, error) {
			return &episode.DockerRunner{
				Image:     "alpine:latest",
				Command:   []string{"sh", "-c", episodeScript},
				Timeout:   30 * time.Second,
				Workspace: filepath.Join(sweepDir, "episodes"),
			}, nil
		},
		Classifier: outcome.NewClassifier(outcome.ZeroCollision{}),
		Parallel:   2,
		Checkpoint: func(p result.RunPair) error { return result.WriteRun(sweepDir, &p) },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pairs, err := o.RunSweep(ctx, s)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("runs: got %d, want 2", len(pairs))
	}

	sum := stats.Summarize(pairs)
	if sum.AverageImprovement() != 50 {
		t.Errorf("average improvement: got %v, want 50", sum.AverageImprovement())
	}
	if sum.Treatment.HardSuccessRate.Mean != 0 {
		t.Errorf("treatment hard SR: got %v, want 0 (every episode collided)", sum.Treatment.HardSuccessRate.Mean)
	}

	stored, err := result.ReadRuns(sweepDir)
	if err != nil {
		t.Fatalf("ReadRuns: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("checkpoints: got %d, want 2", len(stored))
	}
}
