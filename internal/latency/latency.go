// Package latency extracts per-stage timing of the clutter-disambiguation
// pipeline from treatment traces. Collection is best-effort: a trace
// without usable timing yields no sample and a warning, never an error.
package latency

import (
	"math"

	"go.uber.org/zap"

	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/logging"
	"github.com/signalnine/clutterbench/internal/trace"
)

// TotalStage names the derived end-to-end duration in summaries.
const TotalStage = "total"

// DefaultTolerance bounds the allowed gap between a measured total and the
// sum of its stages, relative to the larger of the two (absolute below 1s).
const DefaultTolerance = 1e-6

type Stage struct {
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
}

// Sample is the timing of one treatment episode.
type Sample struct {
	Stages []Stage `json:"stages,omitempty"`
	Total  float64 `json:"total"`
	// MeasuredTotal is set when Total came from the trace rather than the sum.
	MeasuredTotal bool `json:"measured_total,omitempty"`
}

type Collector struct {
	expected  []string
	tolerance float64
	logger    *zap.Logger
}

// NewCollector returns a collector that warns when any of expected is
// missing from a sample.
func NewCollector(expected []string, logger *zap.Logger) *Collector {
	return &Collector{
		expected:  expected,
		tolerance: DefaultTolerance,
		logger:    logging.OrNop(logger),
	}
}

// Collect returns nil for the baseline method and for traces without
// usable timing.
func (c *Collector) Collect(method episode.Method, t *trace.RawTrace) *Sample {
	if method != episode.Treatment || t == nil {
		return nil
	}
	log := c.logger.With(zap.Int64("seed", t.Seed), zap.Int("episode", t.Episode))
	if t.Latency == nil || (len(t.Latency.Stages) == 0 && t.Latency.Total == nil) {
		log.Warn("treatment trace has no latency instrumentation")
		return nil
	}

	s := &Sample{Stages: make([]Stage, 0, len(t.Latency.Stages))}
	seen := make(map[string]bool, len(t.Latency.Stages))
	var sum float64
	for _, st := range t.Latency.Stages {
		if st.Name == "" || st.Name == TotalStage {
			log.Warn("dropping latency sample with invalid stage name", zap.String("stage", st.Name))
			return nil
		}
		if seen[st.Name] {
			log.Warn("dropping latency sample with duplicate stage", zap.String("stage", st.Name))
			return nil
		}
		if st.Seconds < 0 || math.IsNaN(st.Seconds) || math.IsInf(st.Seconds, 0) {
			log.Warn("dropping latency sample with invalid duration",
				zap.String("stage", st.Name), zap.Float64("seconds", st.Seconds))
			return nil
		}
		seen[st.Name] = true
		s.Stages = append(s.Stages, Stage{Name: st.Name, Seconds: st.Seconds})
		sum += st.Seconds
	}
	for _, name := range c.expected {
		if !seen[name] {
			log.Warn("latency stage missing from trace", zap.String("stage", name))
		}
	}

	s.Total = sum
	if t.Latency.Total != nil {
		measured := *t.Latency.Total
		if measured < 0 || math.IsNaN(measured) || math.IsInf(measured, 0) {
			log.Warn("dropping latency sample with invalid total", zap.Float64("total", measured))
			return nil
		}
		if len(s.Stages) > 0 && !c.within(measured, sum) {
			log.Warn("measured latency total disagrees with stage sum",
				zap.Float64("measured", measured), zap.Float64("sum", sum))
		}
		s.Total = measured
		s.MeasuredTotal = true
	}
	return s
}

func (c *Collector) within(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= c.tolerance*scale
}
