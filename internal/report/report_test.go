package report_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/latency"
	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/report"
	"github.com/signalnine/clutterbench/internal/result"
	"github.com/signalnine/clutterbench/internal/stats"
)

var generated = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func manifest(t *testing.T, episodes int, seeds ...int64) *result.Manifest {
	t.Helper()
	s, err := config.NewSweep("pick_coke_can", "semantic",
		[]config.Distractor{{ObjectID: "sponge", SpawnProbability: 0.3}, {ObjectID: "apple", SpawnProbability: 0.5}},
		episodes, len(seeds), seeds, "/models/ckpt")
	require.NoError(t, err)
	return &result.Manifest{ID: s.ID(), Sweep: s, HardSuccessRule: "zero_collision"}
}

func ok(collisions int) result.Episode {
	return result.Episode{Outcome: outcome.EpisodeOutcome{
		Success: true, HardSuccess: collisions == 0, CollisionCount: collisions, FailureMode: outcome.Success,
	}}
}

func failed(mode outcome.FailureMode, collisions int) result.Episode {
	return result.Episode{Outcome: outcome.EpisodeOutcome{CollisionCount: collisions, FailureMode: mode}}
}

// scenarioRun has 11/20 baseline and 13/20 treatment successes.
func scenarioRun(withLatency bool) result.RunPair {
	p := result.RunPair{Run: 0, Seed: 0}
	p.Baseline = result.RunResult{Run: 0, Seed: 0, Method: episode.Baseline}
	p.Treatment = result.RunResult{Run: 0, Seed: 0, Method: episode.Treatment}
	for i := range 20 {
		b := failed(outcome.MissedGrasp, 1)
		if i < 11 {
			b = ok(i % 3)
		}
		b.Index = i
		p.Baseline.Episodes = append(p.Baseline.Episodes, b)

		tr := failed(outcome.Dropped, 0)
		if i < 13 {
			tr = ok(0)
		}
		tr.Index = i
		if withLatency {
			tr.Latency = &latency.Sample{
				Stages: []latency.Stage{{Name: "segmentation", Seconds: 0.2}, {Name: "inpainting", Seconds: 0.5}},
				Total:  0.7,
			}
		}
		p.Treatment.Episodes = append(p.Treatment.Episodes, tr)
	}
	return p
}

func render(t *testing.T, m *result.Manifest, pairs []result.RunPair) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, report.Render(&buf, m, pairs, stats.Summarize(pairs), report.Options{GeneratedAt: generated}))
	return buf.String()
}

func TestRenderScenario(t *testing.T) {
	m := manifest(t, 20, 0)
	out := render(t, m, []result.RunPair{scenarioRun(true)})

	assert.Contains(t, out, "# Clutter Evaluation Report: pick_coke_can (semantic)")
	assert.Contains(t, out, "Generated: 2026-03-01T12:00:00Z")
	assert.Contains(t, out, "| 0 | 0 | 55.0% | 65.0% | +10.0% |")
	assert.Contains(t, out, "Average improvement: +10.0%")
	assert.Contains(t, out, "| Sweep ID | "+m.ID+" |")
	assert.Contains(t, out, "| success | 11 | 13 |")
	assert.Contains(t, out, "| missed_grasp | 9 | 0 |")
	assert.Contains(t, out, "| dropped | 0 | 7 |")
	assert.Contains(t, out, "| total | 20 | 0.700 |")
	assert.Contains(t, out, "| 0 | ✓ | ✓ | ✓ | ✓ | 0 | 0 | success | success |")
	assert.Contains(t, out, "| 19 | ✗ | ✗ | ✗ | ✗ | 1 | 0 | missed_grasp | dropped |")
}

func TestRenderSectionOrder(t *testing.T) {
	out := render(t, manifest(t, 20, 0), []result.RunPair{scenarioRun(true)})
	sections := []string{
		"## Configuration", "## Distractors", "## Per-Run Results", "## Summary Statistics",
		"### Success Rate", "### Hard Success Rate", "## Collision Analysis", "## Failure Modes",
		"## Latency", "## Episode Details", "### Run 0 (seed 0)",
	}
	last := -1
	for _, s := range sections {
		i := strings.Index(out, s)
		require.GreaterOrEqual(t, i, 0, "missing section %q", s)
		assert.Greater(t, i, last, "section %q out of order", s)
		last = i
	}
}

func TestRenderDistractorsKeepInsertionOrder(t *testing.T) {
	out := render(t, manifest(t, 20, 0), []result.RunPair{scenarioRun(false)})
	assert.Less(t, strings.Index(out, "| 1 | sponge | 0.3 |"), strings.Index(out, "| 2 | apple | 0.5 |"))
}

func TestRenderOmitsLatencyWithoutSamples(t *testing.T) {
	out := render(t, manifest(t, 20, 0), []result.RunPair{scenarioRun(false)})
	assert.NotContains(t, out, "## Latency")
}

func TestRenderIsDeterministic(t *testing.T) {
	m := manifest(t, 20, 0, 1)
	second := scenarioRun(true)
	second.Run, second.Seed = 1, 1
	pairs := []result.RunPair{second, scenarioRun(true)}

	a := render(t, m, pairs)
	b := render(t, m, pairs)
	assert.Equal(t, a, b)
	assert.Less(t, strings.Index(a, "### Run 0"), strings.Index(a, "### Run 1"))
}

func TestRenderPartialSweep(t *testing.T) {
	out := render(t, manifest(t, 20, 0, 1, 2), []result.RunPair{scenarioRun(false)})
	assert.Contains(t, out, "| Runs | 3 (completed 1) |")
}

func TestRenderGappedPartialSweep(t *testing.T) {
	last := scenarioRun(false)
	last.Run, last.Seed = 2, 12
	first := scenarioRun(false)
	first.Seed = 10
	out := render(t, manifest(t, 20, 10, 11, 12), []result.RunPair{last, first})

	assert.Contains(t, out, "| Runs | 3 (completed 2) |")
	assert.Contains(t, out, "| 0 | 10 | 55.0% | 65.0% | +10.0% |")
	assert.Contains(t, out, "| 2 | 12 | 55.0% | 65.0% | +10.0% |")
	assert.Less(t, strings.Index(out, "### Run 0 (seed 10)"), strings.Index(out, "### Run 2 (seed 12)"))
	assert.NotContains(t, out, "### Run 1")
	assert.Contains(t, out, "Average improvement: +10.0%")
}

func TestRenderNegativeZeroDelta(t *testing.T) {
	p := scenarioRun(false)
	p.Treatment = p.Baseline
	p.Treatment.Method = episode.Treatment
	out := render(t, manifest(t, 20, 0), []result.RunPair{p})
	assert.Contains(t, out, "| 0.0% |")
	assert.NotContains(t, out, "-0.0%")
}

func writeSweep(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, result.WriteManifest(dir, manifest(t, 20, 0)))
	p := scenarioRun(true)
	require.NoError(t, result.WriteRun(dir, &p))
	return dir
}

func TestGenerateFormats(t *testing.T) {
	dir := writeSweep(t)

	var md bytes.Buffer
	require.NoError(t, report.Generate(dir, "markdown", &md, report.Options{}))
	assert.NotContains(t, md.String(), "Generated:")
	assert.Contains(t, md.String(), "+10.0%")

	var table bytes.Buffer
	require.NoError(t, report.Generate(dir, "table", &table, report.Options{}))
	assert.Contains(t, table.String(), "pick_coke_can/semantic/d2")
	assert.Contains(t, table.String(), "55.0%")

	var js bytes.Buffer
	require.NoError(t, report.Generate(dir, "json", &js, report.Options{}))
	var exp report.Export
	require.NoError(t, json.Unmarshal(js.Bytes(), &exp))
	assert.Equal(t, "zero_collision", exp.HardSuccessRule)
	assert.InDelta(t, 10.0, exp.Summary.AverageImprovement(), 1e-9)

	assert.Error(t, report.Generate(dir, "html", &js, report.Options{}))
}

func TestWriteFiles(t *testing.T) {
	dir := writeSweep(t)
	m, err := result.ReadManifest(dir)
	require.NoError(t, err)
	pairs, err := result.ReadRuns(dir)
	require.NoError(t, err)

	require.NoError(t, report.WriteFiles(dir, m, pairs, report.Options{GeneratedAt: generated}))
	md, err := os.ReadFile(filepath.Join(dir, report.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Generated: 2026-03-01T12:00:00Z")
	_, err = os.Stat(filepath.Join(dir, report.SummaryFileName))
	assert.NoError(t, err)
}
