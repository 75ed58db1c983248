package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/cmd/parentry/commands"
	"github.com/caremarket/parentry/logger"
)

var rootCmd = &cobra.Command{
	Use:   "parentry",
	Short: "Corporate ownership entity resolution",
	Long: `parentry resolves the operating parent company of every licensed
care-provider subsidiary in a federal ownership extract and maintains the
subsidiary and name-variant registries.

Available commands:
  resolve     - Run entity resolution against the latest dataset
  validate    - Check registry invariants after a run
  subsidiary  - Inspect and curate the subsidiary registry
  variants    - Look up name variants
  rules       - Inspect the investment-entity rule table
  dataset     - List imported dataset versions
  runs        - Show resolution run history
  config      - Show and validate configuration

Examples:
  parentry resolve                          # Resolve the latest dataset
  parentry resolve --dry-run --limit 50     # Preview without writing
  parentry subsidiary show HOME_HEALTH "Mohave Healthcare Inc"
  parentry rules check "Blue River Fund III, L.P."`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		cfg, err := commands.LoadConfig(cmd)
		if err == nil && cfg.Log.JSON {
			jsonLogs = true
		}
		// Config errors surface from the command itself
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: /etc/parentry, ~/.parentry, ./parentry.toml)")

	rootCmd.AddCommand(commands.ResolveCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.SubsidiaryCmd)
	rootCmd.AddCommand(commands.VariantsCmd)
	rootCmd.AddCommand(commands.RulesCmd)
	rootCmd.AddCommand(commands.DatasetCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		commands.PrintError(err)
		os.Exit(1)
	}
}
