package stats_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/latency"
	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/result"
	"github.com/signalnine/clutterbench/internal/stats"
)

// runOf builds a run of n episodes where the first successes succeed; the
// first hard of those are hard successes and every failure is tagged mode.
func runOf(run int, seed int64, m episode.Method, n, successes, hard int, mode outcome.FailureMode) result.RunResult {
	r := result.RunResult{Run: run, Seed: seed, Method: m}
	for i := 0; i < n; i++ {
		o := outcome.EpisodeOutcome{FailureMode: mode, CollisionCount: 1}
		if i < successes {
			o = outcome.EpisodeOutcome{Success: true, FailureMode: outcome.Success}
			if i < hard {
				o.HardSuccess = true
			} else {
				o.CollisionCount = 2
			}
		}
		r.Episodes = append(r.Episodes, result.Episode{Index: i, Outcome: o})
	}
	return r
}

func pairOf(run int, seed int64, baseSucc, baseHard, treatSucc, treatHard int) result.RunPair {
	return result.RunPair{
		Run:       run,
		Seed:      seed,
		Baseline:  runOf(run, seed, episode.Baseline, 20, baseSucc, baseHard, outcome.MissedGrasp),
		Treatment: runOf(run, seed, episode.Treatment, 20, treatSucc, treatHard, outcome.NeverReached),
	}
}

func TestDescribeUsesSampleStd(t *testing.T) {
	d := stats.Describe([]float64{55, 65, 60})
	assert.Equal(t, 3, d.N)
	assert.Equal(t, 60.0, d.Mean)
	// Sample std: sqrt((25+25+0)/2) = 5. Population std would be 4.08.
	assert.InDelta(t, 5.0, d.Std, 1e-12)
	assert.Equal(t, 55.0, d.Min)
	assert.Equal(t, 65.0, d.Max)
}

func TestDescribeEdgeCases(t *testing.T) {
	assert.Equal(t, stats.Distribution{}, stats.Describe(nil))
	d := stats.Describe([]float64{42})
	assert.Equal(t, stats.Distribution{N: 1, Mean: 42, Min: 42, Max: 42}, d)
}

func TestSummarizeSingleRunScenario(t *testing.T) {
	s := stats.Summarize([]result.RunPair{pairOf(0, 0, 11, 11, 13, 13)})
	require.Len(t, s.Rows, 1)
	row := s.Rows[0]
	assert.Equal(t, 55.0, row.BaselineSR)
	assert.Equal(t, 65.0, row.TreatmentSR)
	assert.InDelta(t, 10.0, row.DeltaSR, 1e-9)
	assert.InDelta(t, 10.0, s.AverageImprovement(), 1e-9)
	assert.Equal(t, 0.0, s.Baseline.SuccessRate.Std)
}

func TestSummarizeMeanOfDeltas(t *testing.T) {
	pairs := []result.RunPair{
		pairOf(0, 0, 11, 8, 13, 12),
		pairOf(1, 1, 10, 5, 15, 11),
		pairOf(2, 2, 12, 9, 12, 9),
	}
	s := stats.Summarize(pairs)
	assert.Equal(t, 3, s.Runs)

	var sum float64
	for _, r := range s.Rows {
		sum += r.DeltaSR
	}
	assert.Equal(t, sum/3, s.AverageImprovement())
	assert.InDelta(t, s.Treatment.SuccessRate.Mean-s.Baseline.SuccessRate.Mean, s.AverageImprovement(), 1e-9)

	assert.Equal(t, 50.0, s.Baseline.SuccessRate.Min)
	assert.Equal(t, 75.0, s.Treatment.SuccessRate.Max)
	assert.InDelta(t, 5.0, s.Baseline.SuccessRate.Std, 1e-12)
}

func TestSummarizeCollisionsAndFailureModes(t *testing.T) {
	pairs := []result.RunPair{pairOf(0, 0, 11, 8, 13, 12), pairOf(1, 1, 10, 5, 15, 11)}
	s := stats.Summarize(pairs)

	for _, ms := range []stats.MethodSummary{s.Baseline, s.Treatment} {
		total := 0
		for _, mc := range ms.FailureModes {
			total += mc.Count
		}
		assert.Equal(t, 2*20, total, ms.Method)
		assert.Equal(t, 40, ms.Episodes)
	}
	// Baseline: 19 failures with one collision each, 8 non-hard successes with two.
	assert.Equal(t, 21, s.Baseline.Count(outcome.Success))
	assert.Equal(t, 19, s.Baseline.Count(outcome.MissedGrasp))
	assert.Equal(t, 0, s.Baseline.Count(outcome.Dropped))
	assert.Equal(t, 19+8, s.Baseline.EpisodesWithCollision)
	assert.Equal(t, 19+16, s.Baseline.Collisions)
	assert.InDelta(t, 100*27.0/40.0, s.Baseline.CollisionRate, 1e-12)
	assert.Equal(t, 12, s.Treatment.Count(outcome.NeverReached))
}

func TestSummarizeSortsAndDoesNotMutate(t *testing.T) {
	pairs := []result.RunPair{pairOf(2, 7, 1, 1, 2, 2), pairOf(0, 5, 3, 3, 4, 4)}
	s := stats.Summarize(pairs)
	assert.Equal(t, 0, s.Rows[0].Run)
	assert.Equal(t, int64(7), s.Rows[1].Seed)
	assert.Equal(t, 2, pairs[0].Run, "input order must be preserved")
}

func TestSummarizeGappedPartialSweep(t *testing.T) {
	// A parallel sweep interrupted while run 1 was in flight keeps runs 0 and 2.
	pairs := []result.RunPair{pairOf(2, 2, 12, 12, 14, 14), pairOf(0, 0, 10, 10, 12, 12)}
	s := stats.Summarize(pairs)

	assert.Equal(t, 2, s.Runs)
	require.Len(t, s.Rows, 2)
	assert.Equal(t, 0, s.Rows[0].Run)
	assert.Equal(t, 2, s.Rows[1].Run)
	assert.Equal(t, int64(2), s.Rows[1].Seed)
	assert.InDelta(t, 55.0, s.Baseline.SuccessRate.Mean, 1e-9)
	assert.InDelta(t, 65.0, s.Treatment.SuccessRate.Mean, 1e-9)
	assert.InDelta(t, 10.0, s.AverageImprovement(), 1e-9)
	assert.Equal(t, 40, s.Baseline.Episodes)
}

func TestSummarizeDeterministic(t *testing.T) {
	pairs := []result.RunPair{pairOf(0, 0, 11, 8, 13, 12), pairOf(1, 1, 7, 5, 15, 11)}
	a := stats.Summarize(pairs)
	b := stats.Summarize(pairs)
	assert.Equal(t, a, b)
	assert.Equal(t, math.Float64bits(a.DeltaSR.Std), math.Float64bits(b.DeltaSR.Std))
}

func TestSummarizeEmpty(t *testing.T) {
	s := stats.Summarize(nil)
	assert.Equal(t, 0, s.Runs)
	assert.Empty(t, s.Rows)
	assert.Nil(t, s.Latency)
	assert.Equal(t, 0.0, s.Baseline.CollisionRate)
}

func TestSummarizeLatency(t *testing.T) {
	p := pairOf(0, 0, 1, 1, 1, 1)
	p.Treatment.Episodes[0].Latency = &latency.Sample{
		Stages: []latency.Stage{{Name: "segmentation", Seconds: 0.2}, {Name: "inpainting", Seconds: 1.0}},
		Total:  1.2,
	}
	p.Treatment.Episodes[1].Latency = &latency.Sample{
		Stages: []latency.Stage{{Name: "segmentation", Seconds: 0.4}, {Name: "inpainting", Seconds: 0.6}},
		Total:  1.0,
	}
	s := stats.Summarize([]result.RunPair{p})
	require.Len(t, s.Latency, 3)
	assert.Equal(t, "segmentation", s.Latency[0].Stage)
	assert.Equal(t, "inpainting", s.Latency[1].Stage)
	assert.Equal(t, latency.TotalStage, s.Latency[2].Stage)
	assert.InDelta(t, 0.3, s.Latency[0].Mean, 1e-12)
	assert.InDelta(t, 1.1, s.Latency[2].Mean, 1e-12)
	assert.Equal(t, 2, s.Latency[2].N)
}
