package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership/resolver"
)

// ValidateCmd checks registry invariants after a run.
var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the subsidiary and name-variant registries",
	Long: `Check the registries after a run:

  - no subsidiary parent classifies as an investment entity
  - every name-variant canonical name is already normalized
  - the latest resolution run completed

Exits 1 when any check fails.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	classifier, err := loadClassifier(e.cfg)
	if err != nil {
		return err
	}

	v := &resolver.Validator{
		Subsidiaries: e.subsidiaries,
		Variants:     e.variants,
		Runs:         e.runs,
		Classifier:   classifier,
	}
	report, err := v.Validate(cmd.Context())
	if err != nil {
		return err
	}

	pterm.Info.Printfln("Checked %d subsidiaries and %d name variants", report.Subsidiaries, report.Variants)
	if report.LatestRun != nil {
		pterm.Info.Printfln("Latest run %s: %s", report.LatestRun.ID, report.LatestRun.Status)
	}

	if report.OK() {
		pterm.Success.Println("Registry is valid")
		return nil
	}

	data := pterm.TableData{{"Check", "Subject", "Detail"}}
	for _, f := range report.Findings {
		data = append(data, []string{f.Check, f.Subject, f.Detail})
	}
	if err := renderTable(data); err != nil {
		return err
	}
	return errors.Newf("registry validation failed: %s", pluralize(len(report.Findings), "finding"))
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
