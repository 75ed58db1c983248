package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership"
)

// DatasetCmd lists imported ownership extracts.
var DatasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "List imported dataset versions",
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show dataset versions and which one resolve will use",
	RunE:  runDatasetList,
}

func init() {
	DatasetCmd.AddCommand(datasetListCmd)
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	versions, err := e.datasets.List(ctx)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return errors.WithHint(errors.ErrNoDataset, "import an ownership extract first")
	}

	latest, err := e.datasets.Latest(ctx)
	if err != nil && !errors.Is(err, errors.ErrNoDataset) {
		return err
	}

	data := pterm.TableData{{"", "Dataset", "Status", "Imported", "Records", "Care types"}}
	for _, v := range versions {
		marker := ""
		if latest != nil && v.ID == latest.ID {
			marker = "*"
		}

		careTypes := "-"
		if v.Status == ownership.DatasetCompleted {
			cts, err := e.datasets.CareTypes(ctx, v.ID)
			if err != nil {
				return err
			}
			careTypes = orDash(strings.Join(cts, ", "))
		}

		data = append(data, []string{
			marker, v.ID, string(v.Status),
			v.ImportedAt.Format("2006-01-02 15:04"), fmt.Sprint(v.RecordCount), careTypes,
		})
	}
	if err := renderTable(data); err != nil {
		return err
	}

	if latest == nil {
		pterm.Warning.Println("No completed dataset: resolve has nothing to run against")
	} else {
		pterm.Info.Printfln("* resolve uses %s", latest.ID)
	}
	return nil
}
