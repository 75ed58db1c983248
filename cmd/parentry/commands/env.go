package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/caremarket/parentry/config"
	"github.com/caremarket/parentry/db"
	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/logger"
	"github.com/caremarket/parentry/ownership/classify"
	"github.com/caremarket/parentry/ownership/storage"
)

// LoadConfig loads configuration from --config when given, otherwise from
// the standard config cascade.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// PrintError writes err and any operator hints to stderr.
func PrintError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
}

// env bundles what most commands need: validated config and the stores over
// one database connection.
type env struct {
	cfg          *config.Config
	conn         *sql.DB
	dialect      db.Dialect
	datasets     *storage.DatasetStore
	subsidiaries *storage.SubsidiaryStore
	variants     *storage.VariantStore
	runs         *storage.RunStore
}

func openEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	dialect, err := db.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	policy, err := storage.ParseVariantPolicy(cfg.Variants.Policy)
	if err != nil {
		return nil, err
	}

	target := cfg.Database.Path
	if dialect == db.Postgres {
		target = cfg.Database.DSN
	}
	conn, err := db.Connect(ctx, dialect, target, logger.ComponentLogger("db"))
	if err != nil {
		return nil, err
	}
	logger.Debugw("Registry database ready", logger.FieldDriver, dialect, "variant_policy", policy)

	return &env{
		cfg:          cfg,
		conn:         conn,
		dialect:      dialect,
		datasets:     storage.NewDatasetStore(conn, dialect),
		subsidiaries: storage.NewSubsidiaryStore(conn, dialect),
		variants:     storage.NewVariantStore(conn, dialect, policy),
		runs:         storage.NewRunStore(conn, dialect),
	}, nil
}

func (e *env) Close() error {
	return e.conn.Close()
}

// loadClassifier compiles rules.path, or the embedded table when unset.
func loadClassifier(cfg *config.Config) (*classify.Classifier, error) {
	if cfg.Rules.Path == "" {
		return classify.NewDefault()
	}
	c, err := classify.Load(cfg.Rules.Path)
	if err != nil {
		return nil, errors.WithHint(err, "fix the rule table or unset rules.path to use the embedded rules")
	}
	return c, nil
}

func renderTable(data pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
