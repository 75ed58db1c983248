package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership"
)

// VariantsCmd looks up the name-variant registry.
var VariantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Look up name variants",
	Long: `Look up how raw spellings map to canonical names.

Contexts: ownership_parent, ownership_subsidiary, ownership_investor.

Examples:
  parentry variants lookup "THE PENNANT GROUP, INC."
  parentry variants list --canonical "PENNANT GROUP"`,
}

var variantsLookupCmd = &cobra.Command{
	Use:   "lookup <variant>",
	Short: "Show the canonical name for a raw spelling",
	Args:  cobra.ExactArgs(1),
	RunE:  runVariantsLookup,
}

var variantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List name variants",
	RunE:  runVariantsList,
}

var allContexts = []string{ownership.ContextParent, ownership.ContextSubsidiary, ownership.ContextInvestor}

func init() {
	variantsLookupCmd.Flags().String("context", "", "Only look in this source context")
	variantsListCmd.Flags().String("canonical", "", "Only variants of this canonical name")
	variantsListCmd.Flags().Int("limit", 100, "Maximum variants to list, 0 = all")

	VariantsCmd.AddCommand(variantsLookupCmd)
	VariantsCmd.AddCommand(variantsListCmd)
}

func runVariantsLookup(cmd *cobra.Command, args []string) error {
	sourceContext, _ := cmd.Flags().GetString("context")
	contexts := allContexts
	if sourceContext != "" {
		contexts = []string{sourceContext}
	}

	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	data := pterm.TableData{{"Context", "Variant", "Canonical", "Last run"}}
	for _, c := range contexts {
		v, err := e.variants.Lookup(cmd.Context(), args[0], c)
		if errors.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return err
		}
		data = append(data, []string{v.SourceContext, v.VariantName, v.CanonicalName, orDash(v.LastRunID)})
	}

	if len(data) == 1 {
		return errors.NewNotFoundError("variant %q", args[0])
	}
	return renderTable(data)
}

func runVariantsList(cmd *cobra.Command, args []string) error {
	canonical, _ := cmd.Flags().GetString("canonical")
	limit, _ := cmd.Flags().GetInt("limit")

	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	var variants []ownership.NameVariant
	if canonical != "" {
		variants, err = e.variants.ListFor(cmd.Context(), canonical)
	} else {
		variants, err = e.variants.List(cmd.Context(), limit)
	}
	if err != nil {
		return err
	}
	if len(variants) == 0 {
		pterm.Info.Println("No name variants")
		return nil
	}

	data := pterm.TableData{{"Context", "Variant", "Canonical", "Last run"}}
	for _, v := range variants {
		data = append(data, []string{v.SourceContext, v.VariantName, v.CanonicalName, orDash(v.LastRunID)})
	}
	return renderTable(data)
}
