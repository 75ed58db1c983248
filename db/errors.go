package db

import (
	"strings"

	"github.com/caremarket/parentry/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
// This typically occurs when a run is interrupted and the connection is closed
// before all workers have finished.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// This handles both:
// - Wrapped ErrDatabaseClosed errors from this package
// - Raw driver errors that contain "database is closed" in their message.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	// Driver errors cannot be wrapped at the source
	errMsg := err.Error()
	return strings.Contains(errMsg, "database is closed") ||
		strings.Contains(errMsg, "sql: database is closed")
}
