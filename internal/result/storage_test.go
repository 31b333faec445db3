package result_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/latency"
	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/result"
)

func pair(run int, seed int64) *result.RunPair {
	ok := outcome.EpisodeOutcome{Success: true, HardSuccess: true, FailureMode: outcome.Success}
	return &result.RunPair{
		Run:  run,
		Seed: seed,
		Baseline: result.RunResult{Run: run, Seed: seed, Method: episode.Baseline, Episodes: []result.Episode{
			{Index: 0, Outcome: ok},
		}},
		Treatment: result.RunResult{Run: run, Seed: seed, Method: episode.Treatment, Episodes: []result.Episode{
			{Index: 0, Outcome: ok, Latency: &latency.Sample{Stages: []latency.Stage{{Name: "segmentation", Seconds: 0.2}}, Total: 0.2}},
		}},
	}
}

func TestWriteAndReadRuns(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []*result.RunPair{pair(2, 30), pair(0, 10), pair(10, 100), pair(1, 20)} {
		require.NoError(t, result.WriteRun(dir, p))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run-notes.json"), []byte("{}"), 0o644))

	pairs, err := result.ReadRuns(dir)
	require.NoError(t, err)
	require.Len(t, pairs, 4)
	var runs []int
	for _, p := range pairs {
		runs = append(runs, p.Run)
	}
	assert.Equal(t, []int{0, 1, 2, 10}, runs)
	assert.Equal(t, *pair(2, 30), pairs[2])

	_, err = os.Stat(filepath.Join(dir, "run-0.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadRunsCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run-0.json"), []byte("{"), 0o644))
	_, err := result.ReadRuns(dir)
	assert.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := config.NewSweep("task", "control", nil, 20, 1, []int64{0}, "ckpt")
	require.NoError(t, err)
	m := &result.Manifest{ID: s.ID(), Sweep: s, HardSuccessRule: "zero_collision"}
	require.NoError(t, result.WriteManifest(dir, m))
	got, err := result.ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, s.Seeds, got.Sweep.Seeds)
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestSweepDirAndFind(t *testing.T) {
	base := t.TempDir()
	s, err := config.NewSweep("pick", "semantic", []config.Distractor{{ObjectID: "a", SpawnProbability: 1}}, 1, 1, []int64{0}, "ckpt")
	require.NoError(t, err)
	dir := result.SweepDir(base, s)
	assert.Equal(t, filepath.Join(base, "sweeps", "pick", "semantic", "d1"), dir)

	require.NoError(t, result.WriteManifest(dir, &result.Manifest{ID: s.ID(), Sweep: s}))
	dirs, err := result.FindSweepDirs(base)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, dirs)
}

func TestRates(t *testing.T) {
	r := result.RunResult{}
	for i := 0; i < 20; i++ {
		o := outcome.EpisodeOutcome{FailureMode: outcome.NeverReached}
		if i < 11 {
			o = outcome.EpisodeOutcome{Success: true, FailureMode: outcome.Success, HardSuccess: i < 7}
		}
		r.Episodes = append(r.Episodes, result.Episode{Index: i, Outcome: o})
	}
	assert.Equal(t, 55.0, r.SuccessRate())
	assert.Equal(t, 35.0, r.HardSuccessRate())
	assert.Equal(t, 0.0, (&result.RunResult{}).SuccessRate())
}
