package result

import (
	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/latency"
	"github.com/signalnine/clutterbench/internal/outcome"
)

// Episode is one classified episode of one method.
type Episode struct {
	Index   int                    `json:"index"`
	Outcome outcome.EpisodeOutcome `json:"outcome"`
	Latency *latency.Sample        `json:"latency,omitempty"`
	// Error is set when the environment failed and Outcome is synthetic.
	Error  string   `json:"error,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

// RunResult holds every episode of one method under one seed, in episode
// index order.
type RunResult struct {
	Run      int            `json:"run"`
	Seed     int64          `json:"seed"`
	Method   episode.Method `json:"method"`
	Episodes []Episode      `json:"episodes"`
}

func (r *RunResult) Successes() int {
	n := 0
	for _, e := range r.Episodes {
		if e.Outcome.Success {
			n++
		}
	}
	return n
}

func (r *RunResult) HardSuccesses() int {
	n := 0
	for _, e := range r.Episodes {
		if e.Outcome.HardSuccess {
			n++
		}
	}
	return n
}

// SuccessRate is the percentage of successful episodes, unrounded.
func (r *RunResult) SuccessRate() float64 {
	return percent(r.Successes(), len(r.Episodes))
}

// HardSuccessRate is the percentage of hard-successful episodes, unrounded.
func (r *RunResult) HardSuccessRate() float64 {
	return percent(r.HardSuccesses(), len(r.Episodes))
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// RunPair is the unit of checkpointing: both methods of one run.
type RunPair struct {
	Run       int       `json:"run"`
	Seed      int64     `json:"seed"`
	Baseline  RunResult `json:"baseline"`
	Treatment RunResult `json:"treatment"`
}

// Method returns the result of m.
func (p *RunPair) Method(m episode.Method) *RunResult {
	if m == episode.Treatment {
		return &p.Treatment
	}
	return &p.Baseline
}

// Manifest describes the sweep a directory of run checkpoints belongs to.
type Manifest struct {
	ID              string       `json:"id"`
	Sweep           config.Sweep `json:"sweep"`
	HardSuccessRule string       `json:"hard_success_rule"`
	LatencyStages   []string     `json:"latency_stages,omitempty"`
}
