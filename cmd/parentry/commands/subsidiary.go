package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/normalize"
)

// SubsidiaryCmd inspects and curates the subsidiary registry.
var SubsidiaryCmd = &cobra.Command{
	Use:     "subsidiary",
	Aliases: []string{"sub"},
	Short:   "Inspect and curate the subsidiary registry",
	Long: `Inspect registry rows and manage manual overrides.

Manual rows are never modified or swept by resolution runs. Release a row to
hand it back to automated resolution.

Examples:
  parentry subsidiary list --care-type HOME_HEALTH
  parentry subsidiary show HOME_HEALTH "Mohave Healthcare Inc"
  parentry subsidiary override HOME_HEALTH "Mohave Healthcare Inc" "The Pennant Group" --verified
  parentry subsidiary release HOME_HEALTH "Mohave Healthcare Inc"`,
}

var subsidiaryShowCmd = &cobra.Command{
	Use:   "show <care_type> <name>",
	Short: "Show one registry row",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubsidiaryShow,
}

var subsidiaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry rows",
	RunE:  runSubsidiaryList,
}

var subsidiaryOverrideCmd = &cobra.Command{
	Use:   "override <care_type> <name> <parent>",
	Short: "Set a manual parent for a subsidiary",
	Long: `Set a manual parent. The row becomes source 'manual' and is protected
from automated runs. Parents that classify as investment entities are refused
unless --force is given, as is replacing a different manual parent.`,
	Args: cobra.ExactArgs(3),
	RunE: runSubsidiaryOverride,
}

var subsidiaryReleaseCmd = &cobra.Command{
	Use:   "release <care_type> <name>",
	Short: "Return a manual row to automated resolution",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubsidiaryRelease,
}

func init() {
	subsidiaryListCmd.Flags().String("care-type", "", "Only list this care type")
	subsidiaryListCmd.Flags().Int("limit", 50, "Maximum rows to list, 0 = all")
	subsidiaryOverrideCmd.Flags().Bool("verified", false, "Mark the override as verified")
	subsidiaryOverrideCmd.Flags().Bool("force", false, "Allow a parent that classifies as an investment entity")

	SubsidiaryCmd.AddCommand(subsidiaryShowCmd)
	SubsidiaryCmd.AddCommand(subsidiaryListCmd)
	SubsidiaryCmd.AddCommand(subsidiaryOverrideCmd)
	SubsidiaryCmd.AddCommand(subsidiaryReleaseCmd)
}

func subsidiaryKey(careType, name string) ownership.SubsidiaryKey {
	return ownership.SubsidiaryKey{
		Name:     normalize.Key(name),
		CareType: strings.ToUpper(strings.TrimSpace(careType)),
	}
}

func runSubsidiaryShow(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	sub, err := e.subsidiaries.Get(cmd.Context(), subsidiaryKey(args[0], args[1]))
	if err != nil {
		return err
	}

	parent, role, pct := "-", orDash(string(sub.ParentRole)), "-"
	if sub.CanonicalParent != nil {
		parent = *sub.CanonicalParent
	}
	if sub.ParentPercentage != nil {
		pct = fmt.Sprintf("%.2f", *sub.ParentPercentage)
	}

	return renderTable(pterm.TableData{
		{"Field", "Value"},
		{"Subsidiary", sub.Key.Name},
		{"Care type", sub.Key.CareType},
		{"Parent", parent},
		{"Parent role", role},
		{"Parent ownership %", pct},
		{"Agencies", fmt.Sprint(sub.AgencyCount)},
		{"States", orDash(strings.Join(sub.States, ", "))},
		{"DBA names", orDash(strings.Join(sub.DBANames, "; "))},
		{"Investors", orDash(strings.Join(sub.PEInvestors, "; "))},
		{"Source", string(sub.Source)},
		{"Verified", fmt.Sprint(sub.Verified)},
		{"Last run", orDash(sub.LastRunID)},
		{"Dataset", orDash(sub.DatasetID)},
		{"Updated", sub.UpdatedAt.Format("2006-01-02 15:04:05")},
	})
}

func runSubsidiaryList(cmd *cobra.Command, args []string) error {
	careType, _ := cmd.Flags().GetString("care-type")
	limit, _ := cmd.Flags().GetInt("limit")

	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	subs, err := e.subsidiaries.List(cmd.Context(), strings.ToUpper(careType), limit)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		pterm.Info.Println("No registry rows")
		return nil
	}

	data := pterm.TableData{{"Care type", "Subsidiary", "Parent", "Agencies", "States", "Source"}}
	for _, s := range subs {
		parent := "-"
		if s.CanonicalParent != nil {
			parent = *s.CanonicalParent
		}
		data = append(data, []string{
			s.Key.CareType, s.Key.Name, parent,
			fmt.Sprint(s.AgencyCount), strings.Join(s.States, ","), string(s.Source),
		})
	}
	return renderTable(data)
}

func runSubsidiaryOverride(cmd *cobra.Command, args []string) error {
	verified, _ := cmd.Flags().GetBool("verified")
	force, _ := cmd.Flags().GetBool("force")

	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	classifier, err := loadClassifier(e.cfg)
	if err != nil {
		return err
	}

	parent := args[2]
	if v := classifier.Classify(ownership.OwnershipRecord{OwnerName: parent}); v.Investment && !force {
		return errors.WithHint(
			errors.NewInvalidRequestError("%q classifies as an investment entity (rule %s)", parent, v.RuleID),
			"an investment entity is not an operating parent; pass --force to override anyway",
		)
	}

	key := subsidiaryKey(args[0], args[1])
	existing, err := e.subsidiaries.Get(cmd.Context(), key)
	switch {
	case errors.IsNotFoundError(err):
	case err != nil:
		return err
	case existing.Source == ownership.SourceManual && !force &&
		(existing.CanonicalParent == nil || *existing.CanonicalParent != normalize.Key(parent)):
		return errors.WithHint(
			errors.Wrapf(errors.ErrManualProtected, "%s already has a manual parent", key),
			"pass --force to replace it, or release the row first",
		)
	}

	if err := e.subsidiaries.SetManual(cmd.Context(), key, parent, verified); err != nil {
		return err
	}
	pterm.Success.Printfln("%s now has manual parent %s", key, normalize.Key(parent))
	return nil
}

func runSubsidiaryRelease(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	key := subsidiaryKey(args[0], args[1])
	if err := e.subsidiaries.Release(cmd.Context(), key); err != nil {
		return err
	}
	pterm.Success.Printfln("%s released; the next run will resolve it", key)
	return nil
}
