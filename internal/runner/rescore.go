package runner

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/episode"
	"github.com/signalnine/clutterbench/internal/logging"
	"github.com/signalnine/clutterbench/internal/outcome"
	"github.com/signalnine/clutterbench/internal/result"
	"github.com/signalnine/clutterbench/internal/trace"
)

// Rescore re-classifies stored runs with c, reading each episode's trace
// from the workspace the runners wrote it to. An episode whose trace is
// gone keeps its stored success and collision count and only has its hard
// success re-evaluated. Environment failures are left untouched. The input
// is not modified; reread counts the traces that were found.
func Rescore(s config.Sweep, pairs []result.RunPair, workspace string, c *outcome.Classifier, logger *zap.Logger) (out []result.RunPair, reread int) {
	log := logging.OrNop(logger).With(zap.String("sweep", s.Name()))
	out = make([]result.RunPair, len(pairs))
	for i, p := range pairs {
		np := result.RunPair{Run: p.Run, Seed: p.Seed}
		for _, m := range episode.Methods {
			src := p.Method(m)
			dst := np.Method(m)
			*dst = result.RunResult{Run: src.Run, Seed: src.Seed, Method: src.Method, Episodes: make([]result.Episode, len(src.Episodes))}
			for j, ep := range src.Episodes {
				if ep.Error != "" {
					dst.Episodes[j] = ep
					continue
				}
				req := episode.Request{
					Task: s.Task, Category: s.Category, Distractors: s.Distractors, Checkpoint: s.Checkpoint,
					Run: p.Run, Seed: p.Seed, Episode: ep.Index, Method: m,
				}
				path := filepath.Join(episode.Dir(workspace, req), trace.FileName)
				tr, err := trace.ReadFile(path)
				if err != nil {
					log.Warn("trace unavailable, re-evaluating stored outcome",
						zap.Int("run", p.Run), zap.Int("episode", ep.Index), zap.String("method", string(m)), zap.Error(err))
					o := ep.Outcome
					o.HardSuccess = o.Success && c.Rule().Hard(o.Success, o.CollisionCount)
					ep.Outcome = o
					dst.Episodes[j] = ep
					continue
				}
				reread++
				ep.Outcome = c.Classify(tr)
				ep.Issues = tr.Issues
				dst.Episodes[j] = ep
			}
		}
		out[i] = np
	}
	return out, reread
}
