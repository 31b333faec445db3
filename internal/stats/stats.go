// Package stats aggregates run results into sweep-level statistics.
//
// Summarize is a pure fold: it never mutates its input, keeps no state
// between calls, and visits results in run-index order so repeated calls
// on the same input produce bit-identical output. Percentages are kept
// unrounded; rounding happens only when a report is rendered.
package stats

import (
	"math"
	"slices"

	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/latency"
	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/result"
)

// Distribution describes a set of values. Std is the sample standard
// deviation (divides by N-1) and is 0 when fewer than two values exist.
type Distribution struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Describe computes a Distribution over xs in the given order.
func Describe(xs []float64) Distribution {
	d := Distribution{N: len(xs)}
	if len(xs) == 0 {
		return d
	}
	d.Min, d.Max = xs[0], xs[0]
	var sum float64
	for _, x := range xs {
		sum += x
		d.Min = math.Min(d.Min, x)
		d.Max = math.Max(d.Max, x)
	}
	d.Mean = sum / float64(len(xs))
	if len(xs) > 1 {
		var ss float64
		for _, x := range xs {
			ss += (x - d.Mean) * (x - d.Mean)
		}
		d.Std = math.Sqrt(ss / float64(len(xs)-1))
	}
	return d
}

// PairedRow compares both methods on one run. Deltas are treatment minus
// baseline, in percentage points.
type PairedRow struct {
	Run          int     `json:"run"`
	Seed         int64   `json:"seed"`
	BaselineSR   float64 `json:"baseline_sr"`
	TreatmentSR  float64 `json:"treatment_sr"`
	DeltaSR      float64 `json:"delta_sr"`
	BaselineHSR  float64 `json:"baseline_hsr"`
	TreatmentHSR float64 `json:"treatment_hsr"`
	DeltaHSR     float64 `json:"delta_hsr"`
}

type ModeCount struct {
	Mode  outcome.FailureMode `json:"mode"`
	Count int                 `json:"count"`
}

// MethodSummary aggregates one method over every episode of the sweep.
type MethodSummary struct {
	Method                episode.Method `json:"method"`
	SuccessRate           Distribution   `json:"success_rate"`
	HardSuccessRate       Distribution   `json:"hard_success_rate"`
	Episodes              int            `json:"episodes"`
	EpisodesWithCollision int            `json:"episodes_with_collision"`
	Collisions            int            `json:"collisions"`
	// CollisionRate is the percentage of episodes with at least one collision.
	CollisionRate     float64     `json:"collision_rate"`
	FailureModes      []ModeCount `json:"failure_modes"`
	EnvironmentErrors int         `json:"environment_errors"`
}

// Count returns the number of episodes tagged m.
func (s MethodSummary) Count(m outcome.FailureMode) int {
	for _, mc := range s.FailureModes {
		if mc.Mode == m {
			return mc.Count
		}
	}
	return 0
}

// StageStats summarizes one latency stage in seconds.
type StageStats struct {
	Stage string `json:"stage"`
	Distribution
}

type Summary struct {
	Runs      int           `json:"runs"`
	Rows      []PairedRow   `json:"rows"`
	Baseline  MethodSummary `json:"baseline"`
	Treatment MethodSummary `json:"treatment"`
	// DeltaSR and DeltaHSR describe the per-run deltas; their Mean is the
	// average improvement, computed as the mean of deltas.
	DeltaSR  Distribution `json:"delta_sr"`
	DeltaHSR Distribution `json:"delta_hsr"`
	Latency  []StageStats `json:"latency,omitempty"`
}

// AverageImprovement is the mean per-run success-rate delta.
func (s Summary) AverageImprovement() float64 { return s.DeltaSR.Mean }

// AverageHardImprovement is the mean per-run hard-success-rate delta.
func (s Summary) AverageHardImprovement() float64 { return s.DeltaHSR.Mean }

// Summarize folds run pairs into a Summary. Pairs may be in any order and
// may cover fewer runs than the sweep configured.
func Summarize(pairs []result.RunPair) Summary {
	sorted := slices.Clone(pairs)
	result.SortRuns(sorted)

	s := Summary{Runs: len(sorted)}
	var (
		deltaSR, deltaHSR []float64
		baseSR, baseHSR   []float64
		treatSR, treatHSR []float64
	)
	for _, p := range sorted {
		row := PairedRow{
			Run:          p.Run,
			Seed:         p.Seed,
			BaselineSR:   p.Baseline.SuccessRate(),
			TreatmentSR:  p.Treatment.SuccessRate(),
			BaselineHSR:  p.Baseline.HardSuccessRate(),
			TreatmentHSR: p.Treatment.HardSuccessRate(),
		}
		row.DeltaSR = row.TreatmentSR - row.BaselineSR
		row.DeltaHSR = row.TreatmentHSR - row.BaselineHSR
		s.Rows = append(s.Rows, row)

		baseSR = append(baseSR, row.BaselineSR)
		baseHSR = append(baseHSR, row.BaselineHSR)
		treatSR = append(treatSR, row.TreatmentSR)
		treatHSR = append(treatHSR, row.TreatmentHSR)
		deltaSR = append(deltaSR, row.DeltaSR)
		deltaHSR = append(deltaHSR, row.DeltaHSR)
	}
	s.DeltaSR = Describe(deltaSR)
	s.DeltaHSR = Describe(deltaHSR)

	s.Baseline = summarizeMethod(sorted, episode.Baseline)
	s.Baseline.SuccessRate = Describe(baseSR)
	s.Baseline.HardSuccessRate = Describe(baseHSR)
	s.Treatment = summarizeMethod(sorted, episode.Treatment)
	s.Treatment.SuccessRate = Describe(treatSR)
	s.Treatment.HardSuccessRate = Describe(treatHSR)

	s.Latency = summarizeLatency(sorted)
	return s
}

func summarizeMethod(pairs []result.RunPair, m episode.Method) MethodSummary {
	ms := MethodSummary{Method: m}
	counts := make(map[outcome.FailureMode]int, len(outcome.FailureModes))
	for i := range pairs {
		for _, e := range pairs[i].Method(m).Episodes {
			ms.Episodes++
			ms.Collisions += e.Outcome.CollisionCount
			if e.Outcome.CollisionCount > 0 {
				ms.EpisodesWithCollision++
			}
			if e.Error != "" {
				ms.EnvironmentErrors++
			}
			counts[e.Outcome.FailureMode]++
		}
	}
	if ms.Episodes > 0 {
		ms.CollisionRate = 100 * float64(ms.EpisodesWithCollision) / float64(ms.Episodes)
	}
	for _, mode := range outcome.FailureModes {
		ms.FailureModes = append(ms.FailureModes, ModeCount{Mode: mode, Count: counts[mode]})
	}
	return ms
}

// summarizeLatency reports stages in order of first appearance, with the
// end-to-end total last.
func summarizeLatency(pairs []result.RunPair) []StageStats {
	var (
		order  []string
		values = map[string][]float64{}
		totals []float64
	)
	for _, m := range episode.Methods {
		for i := range pairs {
			for _, e := range pairs[i].Method(m).Episodes {
				if e.Latency == nil {
					continue
				}
				for _, st := range e.Latency.Stages {
					if _, ok := values[st.Name]; !ok {
						order = append(order, st.Name)
					}
					values[st.Name] = append(values[st.Name], st.Seconds)
				}
				totals = append(totals, e.Latency.Total)
			}
		}
	}
	if len(totals) == 0 {
		return nil
	}
	out := make([]StageStats, 0, len(order)+1)
	for _, name := range order {
		out = append(out, StageStats{Stage: name, Distribution: Describe(values[name])})
	}
	return append(out, StageStats{Stage: latency.TotalStage, Distribution: Describe(totals)})
}
