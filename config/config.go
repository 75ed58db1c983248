// Package config loads parentry configuration from defaults, TOML files and
// PARENTRY_* environment variables.
package config

// Config represents the parentry configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database" json:"database"`
	Resolve  ResolveConfig  `mapstructure:"resolve" toml:"resolve" yaml:"resolve" json:"resolve"`
	Rules    RulesConfig    `mapstructure:"rules" toml:"rules" yaml:"rules" json:"rules"`
	Variants VariantsConfig `mapstructure:"variants" toml:"variants" yaml:"variants" json:"variants"`
	Metrics  MetricsConfig  `mapstructure:"metrics" toml:"metrics" yaml:"metrics" json:"metrics"`
	Log      LogConfig      `mapstructure:"log" toml:"log" yaml:"log" json:"log"`
}

// DatabaseConfig selects the registry database.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" toml:"driver" yaml:"driver" json:"driver"` // sqlite3 or pgx
	Path   string `mapstructure:"path" toml:"path" yaml:"path" json:"path"`         // sqlite file
	DSN    string `mapstructure:"dsn" toml:"dsn" yaml:"dsn" json:"dsn"`             // postgres connection string
}

// ResolveConfig configures a resolution run.
type ResolveConfig struct {
	Workers           int      `mapstructure:"workers" toml:"workers" yaml:"workers" json:"workers"`                                                 // clamped to 1..16
	CareTypes         []string `mapstructure:"care_types" toml:"care_types" yaml:"care_types" json:"care_types"`                                     // empty = all care types in the dataset
	RecordOrphans     bool     `mapstructure:"record_orphans" toml:"record_orphans" yaml:"record_orphans" json:"record_orphans"`                     // write parentless rows for orphans
	DryRun            bool     `mapstructure:"dry_run" toml:"dry_run" yaml:"dry_run" json:"dry_run"`                                                 // resolve without writing
	RateLimit         float64  `mapstructure:"rate_limit" toml:"rate_limit" yaml:"rate_limit" json:"rate_limit"`                                     // subsidiaries per second, 0 = unlimited
	RowTimeoutSeconds int      `mapstructure:"row_timeout_seconds" toml:"row_timeout_seconds" yaml:"row_timeout_seconds" json:"row_timeout_seconds"` // 0 = none
	MaxLoggedErrors   int      `mapstructure:"max_logged_errors" toml:"max_logged_errors" yaml:"max_logged_errors" json:"max_logged_errors"`
}

// RulesConfig points at an external classification rule table.
type RulesConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path" json:"path"` // empty = embedded default table
}

// VariantsConfig controls name-variant conflict handling.
type VariantsConfig struct {
	Policy string `mapstructure:"policy" toml:"policy" yaml:"policy" json:"policy"` // overwrite or preserve
}

// MetricsConfig configures run metrics export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" toml:"textfile_path" yaml:"textfile_path" json:"textfile_path"` // node_exporter textfile, empty = disabled
}

// LogConfig configures logging output.
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" yaml:"json" json:"json"`
}

// Driver names accepted by database.driver
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Variant policies accepted by variants.policy
const (
	PolicyOverwrite = "overwrite"
	PolicyPreserve  = "preserve"
)

// Worker bounds for resolve.workers
const (
	MinWorkers = 1
	MaxWorkers = 16
)

// ClampWorkers bounds n to [MinWorkers, MaxWorkers].
func ClampWorkers(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}
