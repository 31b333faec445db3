package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/signalnine/clutterbench/internal/result"
	"github.com/signalnine/clutterbench/internal/stats"
)

// Render writes the markdown report. Sections always appear in the same
// order; the latency section appears only when a latency sample exists.
// Output is byte-identical for identical input.
func Render(w io.Writer, m *result.Manifest, pairs []result.RunPair, sum stats.Summary, opts Options) error {
	var b strings.Builder
	s := m.Sweep

	fmt.Fprintf(&b, "# Clutter Evaluation Report: %s (%s)\n\n", s.Task, s.Category)
	if !opts.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "Generated: %s\n\n", opts.GeneratedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("## Configuration\n\n")
	table(&b, []string{"Parameter", "Value"}, [][]string{
		{"Sweep ID", m.ID},
		{"Task", s.Task},
		{"Category", s.Category},
		{"Checkpoint", s.Checkpoint},
		{"Episodes per run", strconv.Itoa(s.EpisodesPerRun)},
		{"Runs", fmt.Sprintf("%d (completed %d)", s.Runs, sum.Runs)},
		{"Seeds", joinSeeds(s.Seeds)},
		{"Hard-success rule", m.HardSuccessRule},
	})

	b.WriteString("## Distractors\n\n")
	if len(s.Distractors) == 0 {
		b.WriteString("No distractors.\n\n")
	} else {
		rows := make([][]string, 0, len(s.Distractors))
		for i, d := range s.Distractors {
			rows = append(rows, []string{strconv.Itoa(i + 1), d.ObjectID, strconv.FormatFloat(d.SpawnProbability, 'g', -1, 64)})
		}
		table(&b, []string{"#", "Object", "Spawn probability"}, rows)
	}

	b.WriteString("## Per-Run Results\n\n")
	rows := make([][]string, 0, len(sum.Rows))
	for _, r := range sum.Rows {
		rows = append(rows, []string{
			strconv.Itoa(r.Run), strconv.FormatInt(r.Seed, 10),
			pct(r.BaselineSR), pct(r.TreatmentSR), signedPct(r.DeltaSR),
			pct(r.BaselineHSR), pct(r.TreatmentHSR), signedPct(r.DeltaHSR),
		})
	}
	table(&b, []string{"Run", "Seed", "Baseline SR", "Treatment SR", "Delta SR", "Baseline Hard SR", "Treatment Hard SR", "Delta Hard SR"}, rows)

	b.WriteString("## Summary Statistics\n\n")
	b.WriteString("### Success Rate\n\n")
	distTable(&b, sum.Baseline.SuccessRate, sum.Treatment.SuccessRate, sum.DeltaSR)
	fmt.Fprintf(&b, "Average improvement: %s\n\n", signedPct(sum.AverageImprovement()))
	b.WriteString("### Hard Success Rate\n\n")
	distTable(&b, sum.Baseline.HardSuccessRate, sum.Treatment.HardSuccessRate, sum.DeltaHSR)
	fmt.Fprintf(&b, "Average improvement: %s\n\n", signedPct(sum.AverageHardImprovement()))

	b.WriteString("## Collision Analysis\n\n")
	rows = rows[:0]
	for _, ms := range []stats.MethodSummary{sum.Baseline, sum.Treatment} {
		perEpisode := 0.0
		if ms.Episodes > 0 {
			perEpisode = float64(ms.Collisions) / float64(ms.Episodes)
		}
		rows = append(rows, []string{
			title(string(ms.Method)),
			strconv.Itoa(ms.Episodes),
			strconv.Itoa(ms.EpisodesWithCollision),
			pct(ms.CollisionRate),
			strconv.Itoa(ms.Collisions),
			fmt.Sprintf("%.2f", perEpisode),
		})
	}
	table(&b, []string{"Method", "Episodes", "Episodes with collision", "Collision rate", "Total collisions", "Collisions per episode"}, rows)

	b.WriteString("## Failure Modes\n\n")
	rows = rows[:0]
	for i, mc := range sum.Baseline.FailureModes {
		rows = append(rows, []string{string(mc.Mode), strconv.Itoa(mc.Count), strconv.Itoa(sum.Treatment.FailureModes[i].Count)})
	}
	table(&b, []string{"Failure mode", "Baseline", "Treatment"}, rows)
	if sum.Baseline.EnvironmentErrors+sum.Treatment.EnvironmentErrors > 0 {
		fmt.Fprintf(&b, "Environment failures recorded as never_reached: baseline %d, treatment %d\n\n",
			sum.Baseline.EnvironmentErrors, sum.Treatment.EnvironmentErrors)
	}

	if len(sum.Latency) > 0 {
		b.WriteString("## Latency\n\n")
		rows = rows[:0]
		for _, st := range sum.Latency {
			rows = append(rows, []string{
				st.Stage, strconv.Itoa(st.N),
				seconds(st.Mean), seconds(st.Std), seconds(st.Min), seconds(st.Max),
			})
		}
		table(&b, []string{"Stage", "Samples", "Mean (s)", "Std (s)", "Min (s)", "Max (s)"}, rows)
	}

	b.WriteString("## Episode Details\n")
	sorted := make([]result.RunPair, len(pairs))
	copy(sorted, pairs)
	result.SortRuns(sorted)
	for _, p := range sorted {
		fmt.Fprintf(&b, "\n### Run %d (seed %d)\n\n", p.Run, p.Seed)
		table(&b, []string{
			"Episode",
			"Baseline success", "Treatment success",
			"Baseline hard", "Treatment hard",
			"Baseline collisions", "Treatment collisions",
			"Baseline failure mode", "Treatment failure mode",
		}, episodeRows(p))
	}

	_, err := io.WriteString(w, strings.TrimRight(b.String(), "\n")+"\n")
	return err
}

func episodeRows(p result.RunPair) [][]string {
	n := max(len(p.Baseline.Episodes), len(p.Treatment.Episodes))
	rows := make([][]string, 0, n)
	for i := range n {
		base, treat := episodeAt(p.Baseline, i), episodeAt(p.Treatment, i)
		idx := i
		if base != nil {
			idx = base.Index
		} else if treat != nil {
			idx = treat.Index
		}
		rows = append(rows, []string{
			strconv.Itoa(idx),
			cell(base, func(e *result.Episode) string { return glyph(e.Outcome.Success) }),
			cell(treat, func(e *result.Episode) string { return glyph(e.Outcome.Success) }),
			cell(base, func(e *result.Episode) string { return glyph(e.Outcome.HardSuccess) }),
			cell(treat, func(e *result.Episode) string { return glyph(e.Outcome.HardSuccess) }),
			cell(base, func(e *result.Episode) string { return strconv.Itoa(e.Outcome.CollisionCount) }),
			cell(treat, func(e *result.Episode) string { return strconv.Itoa(e.Outcome.CollisionCount) }),
			cell(base, func(e *result.Episode) string { return string(e.Outcome.FailureMode) }),
			cell(treat, func(e *result.Episode) string { return string(e.Outcome.FailureMode) }),
		})
	}
	return rows
}

func episodeAt(r result.RunResult, i int) *result.Episode {
	if i < len(r.Episodes) {
		return &r.Episodes[i]
	}
	return nil
}

func cell(e *result.Episode, f func(*result.Episode) string) string {
	if e == nil {
		return "-"
	}
	return f(e)
}

func glyph(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func distTable(b *strings.Builder, base, treat, delta stats.Distribution) {
	row := func(name string, d stats.Distribution, f func(float64) string) []string {
		return []string{name, f(d.Mean), pct(d.Std), f(d.Min), f(d.Max)}
	}
	table(b, []string{"Method", "Mean", "Std", "Min", "Max"}, [][]string{
		row("Baseline", base, pct),
		row("Treatment", treat, pct),
		row("Delta", delta, signedPct),
	})
}

func table(b *strings.Builder, header []string, rows [][]string) {
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(header)) + "\n")
	for _, r := range rows {
		b.WriteString("| " + strings.Join(r, " | ") + " |\n")
	}
	b.WriteString("\n")
}

func joinSeeds(seeds []int64) string {
	parts := make([]string, len(seeds))
	for i, s := range seeds {
		parts[i] = strconv.FormatInt(s, 10)
	}
	return strings.Join(parts, ", ")
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// round1 rounds to one decimal and normalizes negative zero.
func round1(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0
	}
	return r
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", round1(v))
}

func signedPct(v float64) string {
	r := round1(v)
	if r > 0 {
		return fmt.Sprintf("+%.1f%%", r)
	}
	return fmt.Sprintf("%.1f%%", r)
}

func seconds(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
