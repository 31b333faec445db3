package config

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// sweepNamespace scopes deterministic sweep ids.
var sweepNamespace = uuid.MustParse("6f1d7c3e-52a4-4c1b-9a0e-3d2b8e7f4a10")

// Sweep is the immutable description of one report: a single task, category
// and distractor set evaluated over Runs seeds. Build it with NewSweep and
// treat it as read-only afterwards.
type Sweep struct {
	Task           string       `json:"task"`
	Category       string       `json:"category"`
	Distractors    []Distractor `json:"distractors"`
	EpisodesPerRun int          `json:"episodes_per_run"`
	Runs           int          `json:"runs"`
	Seeds          []int64      `json:"seeds"`
	Checkpoint     string       `json:"checkpoint"`
}

// NewSweep copies its inputs and validates the result.
func NewSweep(task, category string, distractors []Distractor, episodes, runs int, seeds []int64, checkpoint string) (Sweep, error) {
	s := Sweep{
		Task:           task,
		Category:       category,
		Distractors:    slices.Clone(distractors),
		EpisodesPerRun: episodes,
		Runs:           runs,
		Seeds:          slices.Clone(seeds),
		Checkpoint:     checkpoint,
	}
	if err := s.Validate(); err != nil {
		return Sweep{}, err
	}
	return s, nil
}

// Validate checks the invariants a sweep must hold before any episode runs.
func (s Sweep) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(s.Task) == "" {
		verr.add("task is required")
	}
	if strings.TrimSpace(s.Category) == "" {
		verr.add("category is required")
	}
	if s.EpisodesPerRun < 1 {
		verr.add("episodes_per_run must be >= 1, got %d", s.EpisodesPerRun)
	}
	if s.Runs < 1 {
		verr.add("runs must be >= 1, got %d", s.Runs)
	}
	if len(s.Seeds) != s.Runs {
		verr.add("seed count %d does not match runs %d", len(s.Seeds), s.Runs)
	}
	seen := make(map[int64]bool, len(s.Seeds))
	for _, seed := range s.Seeds {
		if seen[seed] {
			verr.add("duplicate seed %d", seed)
		}
		seen[seed] = true
	}
	ids := make(map[string]bool, len(s.Distractors))
	for _, d := range s.Distractors {
		if d.ObjectID == "" {
			verr.add("distractor with empty id")
		}
		if ids[d.ObjectID] {
			verr.add("duplicate distractor %q", d.ObjectID)
		}
		ids[d.ObjectID] = true
		if math.IsNaN(d.SpawnProbability) || d.SpawnProbability < 0 || d.SpawnProbability > 1 {
			verr.add("distractor %q: probability %g outside [0,1]", d.ObjectID, d.SpawnProbability)
		}
	}
	return verr.orNil()
}

// Name is the human-readable grid coordinate, also used as a path.
func (s Sweep) Name() string {
	return fmt.Sprintf("%s/%s/d%d", s.Task, s.Category, len(s.Distractors))
}

// ID is a UUIDv5 derived from everything that determines the sweep's
// results, so the same sweep always gets the same id.
func (s Sweep) ID() string {
	var b strings.Builder
	b.WriteString(s.Task)
	b.WriteByte('|')
	b.WriteString(s.Category)
	b.WriteByte('|')
	b.WriteString(FormatDistractors(s.Distractors))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(s.EpisodesPerRun))
	b.WriteByte('|')
	for i, seed := range s.Seeds {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(seed, 10))
	}
	b.WriteByte('|')
	b.WriteString(s.Checkpoint)
	return uuid.NewSHA1(sweepNamespace, []byte(b.String())).String()
}

// Overrides are command-line replacements for config values.
type Overrides struct {
	EpisodesPerRun int
	Runs           int
	Seeds          []int64
}

// Expand turns every config entry into one Sweep per distractor count.
// A --runs override without --seeds takes the first runs configured seeds.
// Seeds default to 0..runs-1 once runs is resolved and no seeds are set
// anywhere.
func (c *Config) Expand(o Overrides) ([]Sweep, error) {
	var sweeps []Sweep
	verr := &ValidationError{}
	names := make(map[string]int)
	for i, e := range c.Sweeps {
		episodes := firstPositive(o.EpisodesPerRun, e.EpisodesPerRun, c.EpisodesPerRun)
		seeds := c.Seeds
		if len(e.Seeds) > 0 {
			seeds = e.Seeds
		}
		runs := firstPositive(e.Runs, c.Runs)
		if len(o.Seeds) > 0 {
			seeds = o.Seeds
			runs = len(o.Seeds)
		}
		if o.Runs > 0 {
			runs = o.Runs
			if len(seeds) > runs {
				seeds = seeds[:runs]
			}
		}
		if len(seeds) == 0 {
			seeds = defaultSeeds(runs)
		}

		counts := e.DistractorCounts
		if len(counts) == 0 {
			counts = []int{len(e.Distractors)}
		}
		for _, n := range counts {
			if n > len(e.Distractors) {
				verr.add("sweeps[%d]: distractor count %d exceeds %d distractors", i, n, len(e.Distractors))
				continue
			}
			s, err := NewSweep(e.Task, e.Category, e.Distractors[:n], episodes, runs, seeds, c.Checkpoint)
			if err != nil {
				verr.add("sweeps[%d] (%s/%s/d%d): %v", i, e.Task, e.Category, n, err)
				continue
			}
			// Name is the results directory, so two sweeps sharing it would
			// overwrite each other's checkpoints.
			if prev, ok := names[s.Name()]; ok {
				verr.add("sweeps[%d]: %s duplicates sweeps[%d]", i, s.Name(), prev)
				continue
			}
			names[s.Name()] = i
			sweeps = append(sweeps, s)
		}
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return sweeps, nil
}

func defaultSeeds(runs int) []int64 {
	if runs < 1 {
		return nil
	}
	seeds := make([]int64, runs)
	for i := range seeds {
		seeds[i] = int64(i)
	}
	return seeds
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
