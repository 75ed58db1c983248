package db

import (
	"github.com/jmoiron/sqlx"

	"github.com/caremarket/parentry/errors"
)

// Dialect identifies the SQL flavour behind a *sql.DB. Queries are written
// with '?' placeholders and rebound for the target driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

// ParseDialect maps a database.driver value to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case SQLite, Postgres:
		return Dialect(driver), nil
	case "sqlite", "":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	}
	return "", errors.Wrapf(errors.ErrInvalidRequest, "unsupported database driver %q", driver)
}

// Rebind rewrites '?' placeholders into the driver's bind style.
func (d Dialect) Rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(string(d)), query)
}

// In expands slice arguments into placeholder lists and rebinds the result.
//
//	q, args, err := dialect.In("SELECT ... WHERE name IN (?)", names)
func (d Dialect) In(query string, args ...interface{}) (string, []interface{}, error) {
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, errors.Wrap(err, "expand IN arguments")
	}
	return d.Rebind(q), expanded, nil
}

// migrationDir is the embedded directory holding this dialect's migrations.
func (d Dialect) migrationDir() string {
	if d == Postgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}
