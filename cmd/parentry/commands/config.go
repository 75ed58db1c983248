package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caremarket/parentry/config"
	"github.com/caremarket/parentry/errors"
)

// ConfigCmd shows and validates configuration.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and validate configuration",
	Long: `Show and validate parentry configuration.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (PARENTRY_* prefix, DATABASE_URL for the dsn)
3. --config file, or the cascade below
4. Project config (./parentry.toml)
5. User config (~/.parentry/config.toml)
6. System config (/etc/parentry/config.toml)
7. Default values

Examples:
  parentry config show
  parentry config show --format yaml
  parentry config validate`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and the rule table",
	RunE:  runConfigValidate,
}

func init() {
	configShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

// marshalConfig renders cfg in one of the supported formats.
func marshalConfig(cfg *config.Config, format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(cfg, "", "  ")
	case "yaml":
		return yaml.Marshal(cfg)
	case "toml":
		return toml.Marshal(cfg)
	}
	return nil, errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := LoadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	// Credentials in the dsn stay out of terminal scrollback
	shown := *cfg
	if shown.Database.DSN != "" {
		shown.Database.DSN = "<redacted>"
	}

	data, err := marshalConfig(&shown, format)
	if err != nil {
		return err
	}
	if format != "json" {
		fmt.Println("# parentry configuration")
	}
	fmt.Println(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	c, err := loadClassifier(cfg)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		pterm.Info.Printfln("Config file: %s", path)
	} else {
		for _, src := range config.Sources() {
			pterm.Info.Printfln("Config file: %s", src)
		}
	}
	pterm.Success.Printfln("Configuration is valid (rule table %s, %d rules)", c.Version(), len(c.Rules()))
	return nil
}
