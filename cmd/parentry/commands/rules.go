package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/classify"
	"github.com/caremarket/parentry/ownership/normalize"
)

// RulesCmd inspects the investment-entity rule table.
var RulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the investment-entity rule table",
	Long: `Inspect the rule table that decides which owners are investment entities.

The embedded table is used unless rules.path points at a YAML file.

Examples:
  parentry rules list
  parentry rules check "Blue River Fund III, L.P." "The Pennant Group, Inc."
  parentry rules check --file ./rules.yaml "KKR Home Care Holdings"`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	RunE:  runRulesList,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <name>...",
	Short: "Classify owner names",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRulesCheck,
}

func init() {
	RulesCmd.PersistentFlags().String("file", "", "Rule table to use instead of rules.path")

	RulesCmd.AddCommand(rulesListCmd)
	RulesCmd.AddCommand(rulesCheckCmd)
}

// rulesClassifier prefers --file, then rules.path, then the embedded table.
// It does not need a database.
func rulesClassifier(cmd *cobra.Command) (*classify.Classifier, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		return classify.Load(path)
	}
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return loadClassifier(cfg)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	c, err := rulesClassifier(cmd)
	if err != nil {
		return err
	}

	pterm.Info.Printfln("Rule table version %s", c.Version())
	data := pterm.TableData{{"#", "ID", "Category", "Kind", "Match"}}
	for i, r := range c.Rules() {
		match := strings.Join(r.Patterns, " | ")
		if r.Kind == classify.KindExpr {
			match = r.Expr
		}
		data = append(data, []string{fmt.Sprint(i + 1), r.ID, string(r.Category), string(r.Kind), truncate(match, 60)})
	}
	return renderTable(data)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	c, err := rulesClassifier(cmd)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"Name", "Normalized", "Investment entity", "Rule"}}
	for _, name := range args {
		v := c.Classify(ownership.OwnershipRecord{OwnerName: name})
		data = append(data, []string{name, normalize.Key(name), fmt.Sprint(v.Investment), orDash(v.RuleID)})
	}
	return renderTable(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
