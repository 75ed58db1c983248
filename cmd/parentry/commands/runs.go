package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/ownership"
)

// RunsCmd shows resolution run history.
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show resolution run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show one run with its row errors",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "Number of runs to show, 0 = all")

	RunsCmd.AddCommand(runsListCmd)
	RunsCmd.AddCommand(runsShowCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	runs, err := e.runs.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		pterm.Info.Println("No resolution runs recorded")
		return nil
	}

	data := pterm.TableData{{"Run", "Dataset", "Status", "Started", "Processed", "Assigned", "Orphaned", "Skipped", "Swept"}}
	for _, r := range runs {
		data = append(data, []string{
			r.ID, r.DatasetID, string(r.Status), r.StartedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprint(r.Counts.Processed), fmt.Sprint(r.Counts.Assigned),
			fmt.Sprint(r.Counts.Orphaned), fmt.Sprint(r.Counts.Skipped), fmt.Sprint(r.Counts.Swept),
		})
	}
	return renderTable(data)
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	r, err := e.runs.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if err := renderTable(runTable(r)); err != nil {
		return err
	}
	for _, msg := range r.Errors {
		pterm.Warning.Println(msg)
	}
	return nil
}

func runTable(r *ownership.Run) pterm.TableData {
	finished := "-"
	if r.CompletedAt != nil {
		finished = r.CompletedAt.Format("2006-01-02 15:04:05")
	}
	c := r.Counts
	return pterm.TableData{
		{"Field", "Value"},
		{"Run", r.ID},
		{"Dataset", r.DatasetID},
		{"Care types", orDash(strings.ReplaceAll(r.CareType, ",", ", "))},
		{"Status", string(r.Status)},
		{"Dry run", fmt.Sprint(r.DryRun)},
		{"Started", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished", finished},
		{"Processed", fmt.Sprint(c.Processed)},
		{"Assigned", fmt.Sprint(c.Assigned)},
		{"Orphaned", fmt.Sprint(c.Orphaned)},
		{"Skipped", fmt.Sprint(c.Skipped)},
		{"Manual protected", fmt.Sprint(c.Protected)},
		{"Unique parents", fmt.Sprint(c.UniqueParents)},
		{"Distinct states", fmt.Sprint(c.DistinctStates)},
		{"Variants recorded", fmt.Sprint(c.VariantsRecorded)},
		{"Variant drift", fmt.Sprint(c.VariantDrift)},
		{"Swept", fmt.Sprint(c.Swept)},
	}
}
