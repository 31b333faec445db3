package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/runner"
)

var flagPlanJSON bool

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate the sweep grid and print every invocation a run would make",
		Long:  "Dry run: expands and validates the configured sweeps and lists each (run, episode, method) invocation in execution order. No environment is started.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sweeps, err := loadSweeps()
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), sweeps, flagPlanJSON)
		},
	}
	addSweepFlags(cmd)
	cmd.Flags().BoolVar(&flagPlanJSON, "json", false, "print the plan as JSON")
	return cmd
}

type sweepPlan struct {
	Sweep       string              `json:"sweep"`
	ID          string              `json:"id"`
	Invocations []runner.Invocation `json:"invocations"`
}

func printPlan(w io.Writer, sweeps []config.Sweep, asJSON bool) error {
	plans := make([]sweepPlan, 0, len(sweeps))
	total := 0
	for _, s := range sweeps {
		inv := runner.Plan(s)
		total += len(inv)
		plans = append(plans, sweepPlan{Sweep: s.Name(), ID: s.ID(), Invocations: inv})
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plans)
	}
	for _, p := range plans {
		fmt.Fprintf(w, "%s (%s): %d invocations\n", p.Sweep, p.ID, len(p.Invocations))
		for _, inv := range p.Invocations {
			fmt.Fprintf(w, "  %s\n", inv)
		}
	}
	fmt.Fprintf(w, "\n%d sweeps, %d invocations\n", len(plans), total)
	return nil
}
