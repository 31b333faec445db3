package runner

import (
	"fmt"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/episode"
)

// Invocation is one (run, episode, method) execution of a sweep.
type Invocation struct {
	Run     int            `json:"run"`
	Seed    int64          `json:"seed"`
	Episode int            `json:"episode"`
	Method  episode.Method `json:"method"`
}

func (i Invocation) String() string {
	return fmt.Sprintf("run=%d seed=%d episode=%d method=%s", i.Run, i.Seed, i.Episode, i.Method)
}

// Request binds the invocation to its sweep.
func (i Invocation) Request(s config.Sweep) episode.Request {
	return episode.NewRequest(s, i.Run, i.Episode, i.Method)
}

// Plan enumerates every invocation of a sweep in execution order: runs in
// seed-list order, episodes by index, baseline before treatment. RunSweep
// executes exactly this list, which makes it the dry-run output.
func Plan(s config.Sweep) []Invocation {
	out := make([]Invocation, 0, s.Runs*s.EpisodesPerRun*len(episode.Methods))
	for run := range s.Runs {
		out = append(out, planRun(s, run)...)
	}
	return out
}

func planRun(s config.Sweep, run int) []Invocation {
	out := make([]Invocation, 0, s.EpisodesPerRun*len(episode.Methods))
	for ep := range s.EpisodesPerRun {
		for _, m := range episode.Methods {
			out = append(out, Invocation{Run: run, Seed: s.Seeds[run], Episode: ep, Method: m})
		}
	}
	return out
}
