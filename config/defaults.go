package config

import "github.com/spf13/viper"

// DefaultDirPermissions for directories parentry creates.
const DefaultDirPermissions = 0755

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "parentry.db")
	v.SetDefault("database.dsn", "")

	// Resolution defaults
	v.SetDefault("resolve.workers", 4)
	v.SetDefault("resolve.care_types", []string{})
	v.SetDefault("resolve.record_orphans", false) // orphans stay out of the registry
	v.SetDefault("resolve.dry_run", false)
	v.SetDefault("resolve.rate_limit", 0.0)
	v.SetDefault("resolve.row_timeout_seconds", 0)
	v.SetDefault("resolve.max_logged_errors", 100)

	// Classification rules (empty = embedded table)
	v.SetDefault("rules.path", "")

	// Name variants
	v.SetDefault("variants.policy", PolicyOverwrite)

	// Metrics
	v.SetDefault("metrics.textfile_path", "")

	// Logging
	v.SetDefault("log.json", false)
}
