package config

import "github.com/caremarket/parentry/errors"

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path cannot be empty for the sqlite3 driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.WithHint(
				errors.New("database.dsn cannot be empty for the pgx driver"),
				"set PARENTRY_DATABASE_DSN or DATABASE_URL",
			)
		}
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	// Workers outside 1..16 are clamped at run time; only reject nonsense
	if c.Resolve.Workers < 0 {
		return errors.Newf("resolve.workers must be >= 0, got %d", c.Resolve.Workers)
	}

	// Rate limit: 0 = unlimited, negative = invalid
	if c.Resolve.RateLimit < 0 {
		return errors.Newf("resolve.rate_limit must be >= 0, got %f", c.Resolve.RateLimit)
	}

	// Row timeout: 0 = none, negative = invalid
	if c.Resolve.RowTimeoutSeconds < 0 {
		return errors.Newf("resolve.row_timeout_seconds must be >= 0, got %d", c.Resolve.RowTimeoutSeconds)
	}

	if c.Resolve.MaxLoggedErrors < 0 {
		return errors.Newf("resolve.max_logged_errors must be >= 0, got %d", c.Resolve.MaxLoggedErrors)
	}

	for _, ct := range c.Resolve.CareTypes {
		if ct == "" {
			return errors.New("resolve.care_types cannot contain an empty care type")
		}
	}

	switch c.Variants.Policy {
	case PolicyOverwrite, PolicyPreserve:
	default:
		return errors.Newf("variants.policy must be %q or %q, got %q", PolicyOverwrite, PolicyPreserve, c.Variants.Policy)
	}

	return nil
}
