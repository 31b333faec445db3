package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/clutterbench/internal/report"
	"github.com/signalnine/clutterbench/internal/result"
)

// episodeScript succeeds on every treatment episode and on even baseline
// episodes.
const episodeScript = `if [ "$METHOD" = treatment ] || [ $((EPISODE % 2)) -eq 0 ]; then s=true; else s=false; fi
printf '{"status":"completed","seed":%s,"episode":%s,"method":"%s","success":%s,"reached":true,"grasped":%s}' "$SEED" "$EPISODE" "$METHOD" "$s" "$s" > "$TRACE_OUT"
`

func writeConfig(t *testing.T) (cfgPath, resultsDir string) {
	t.Helper()
	dir := t.TempDir()
	resultsDir = filepath.Join(dir, "results")
	cfg := map[string]any{
		"checkpoint":       "/models/policy",
		"episodes_per_run": 4,
		"runs":             2,
		"seeds":            []int{7, 8},
		"runner": map[string]any{
			"kind":    "exec",
			"command": []string{"sh", "-c", episodeScript},
		},
		"sweeps": []map[string]any{
			{"task": "pick_coke_can", "category": "semantic", "distractors": []string{"apple:0.5"}},
		},
		"results": map[string]any{"dir": resultsDir},
	}
	// JSON is valid YAML.
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	cfgPath = filepath.Join(dir, "clutterbench.yaml")
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))
	return cfgPath, resultsDir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestRunEndToEnd(t *testing.T) {
	cfgPath, resultsDir := writeConfig(t)

	out := execute(t, "--config", cfgPath, "plan")
	assert.Contains(t, out, "16 invocations")

	execute(t, "--config", cfgPath, "run", "--parallel", "2")

	dirs, err := result.FindSweepDirs(resultsDir)
	require.NoError(t, err)
	require.Len(t, dirs, 1)

	pairs, err := result.ReadRuns(dirs[0])
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	for i, p := range pairs {
		assert.Equal(t, i, p.Run)
		assert.InDelta(t, 50.0, p.Baseline.SuccessRate(), 1e-9)
		assert.InDelta(t, 100.0, p.Treatment.SuccessRate(), 1e-9)
	}

	md, err := os.ReadFile(filepath.Join(dirs[0], report.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Average improvement: +50.0%")
	assert.NotContains(t, string(md), "## Latency")

	execute(t, "--config", cfgPath, "rescore", "--rule", "success_only", filepath.Join(resultsDir, "latest"))
	m, err := result.ReadManifest(dirs[0])
	require.NoError(t, err)
	assert.Equal(t, "success_only", m.HardSuccessRule)
}

func TestRunResumeSkipsCheckpointedRuns(t *testing.T) {
	cfgPath, resultsDir := writeConfig(t)
	execute(t, "--config", cfgPath, "run")

	dirs, err := result.FindSweepDirs(resultsDir)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	// Drop run 1 and its episodes; resume must re-run only that.
	require.NoError(t, os.Remove(filepath.Join(dirs[0], "run-1.json")))
	require.NoError(t, os.RemoveAll(filepath.Join(dirs[0], episodesDir)))

	execute(t, "--config", cfgPath, "run", "--resume", filepath.Join(resultsDir, "latest"))

	pairs, err := result.ReadRuns(dirs[0])
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	_, err = os.Stat(filepath.Join(dirs[0], episodesDir, "run-0"))
	assert.True(t, os.IsNotExist(err), "run 0 was executed again")
	_, err = os.Stat(filepath.Join(dirs[0], episodesDir, "run-1"))
	assert.NoError(t, err)
}
