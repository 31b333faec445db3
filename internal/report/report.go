// Package report renders a sweep's run results and summary as a markdown
// document, a terminal table or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/signalnine/clutterbench/internal/result"
	"github.com/signalnine/clutterbench/internal/stats"
)

const (
	FileName        = "report.md"
	SummaryFileName = "summary.json"
)

var Formats = []string{"markdown", "table", "json"}

type Options struct {
	// GeneratedAt is embedded in the markdown header. Zero omits the line.
	GeneratedAt time.Time
}

// Export is the JSON form of a report.
type Export struct {
	ID              string        `json:"id"`
	Sweep           string        `json:"sweep"`
	HardSuccessRule string        `json:"hard_success_rule"`
	Summary         stats.Summary `json:"summary"`
}

// Generate reads the checkpoints of sweepDir and renders them in format.
func Generate(sweepDir, format string, w io.Writer, opts Options) error {
	m, err := result.ReadManifest(sweepDir)
	if err != nil {
		return err
	}
	pairs, err := result.ReadRuns(sweepDir)
	if err != nil {
		return err
	}
	sum := stats.Summarize(pairs)

	switch format {
	case "markdown":
		return Render(w, m, pairs, sum, opts)
	case "json":
		return writeJSON(w, m, sum)
	case "table":
		return writeTable(w, m, sum)
	default:
		return fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteFiles renders report.md and summary.json into sweepDir.
func WriteFiles(sweepDir string, m *result.Manifest, pairs []result.RunPair, opts Options) error {
	sum := stats.Summarize(pairs)

	var md strings.Builder
	if err := Render(&md, m, pairs, sum, opts); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(sweepDir, FileName), []byte(md.String()), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	var js strings.Builder
	if err := writeJSON(&js, m, sum); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(sweepDir, SummaryFileName), []byte(js.String()), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

func writeTable(w io.Writer, m *result.Manifest, sum stats.Summary) error {
	fmt.Fprintf(w, "%s  (%s, rule %s)\n\n", m.Sweep.Name(), m.ID, m.HardSuccessRule)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSEED\tBASE SR\tTREAT SR\tDELTA SR\tBASE HSR\tTREAT HSR\tDELTA HSR")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, r := range sum.Rows {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Run, r.Seed,
			pct(r.BaselineSR), pct(r.TreatmentSR), signedPct(r.DeltaSR),
			pct(r.BaselineHSR), pct(r.TreatmentHSR), signedPct(r.DeltaHSR))
	}
	fmt.Fprintf(tw, "mean\t\t%s\t%s\t%s\t%s\t%s\t%s\n",
		pct(sum.Baseline.SuccessRate.Mean), pct(sum.Treatment.SuccessRate.Mean), signedPct(sum.AverageImprovement()),
		pct(sum.Baseline.HardSuccessRate.Mean), pct(sum.Treatment.HardSuccessRate.Mean), signedPct(sum.AverageHardImprovement()))
	return tw.Flush()
}

func writeJSON(w io.Writer, m *result.Manifest, sum stats.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Export{
		ID:              m.ID,
		Sweep:           m.Sweep.Name(),
		HardSuccessRule: m.HardSuccessRule,
		Summary:         sum,
	})
}
