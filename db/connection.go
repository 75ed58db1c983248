package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/caremarket/parentry/errors"
)

// SQLiteBusyTimeoutMS is how long SQLite waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// pingTimeout bounds the reachability check performed by Connect.
const pingTimeout = 10 * time.Second

// Open opens a SQLite database at the specified path with optimized settings.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "driver", SQLite)
	}

	// Connection parameters apply to every pooled connection, not just the first.
	// Transactions take the write lock at BEGIN: under WAL a deferred
	// transaction that reads and then writes fails with SQLITE_BUSY at once
	// instead of waiting out the busy timeout.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d&_txlock=immediate",
		path, SQLiteBusyTimeoutMS)
	db, err := sql.Open(string(SQLite), dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"driver", SQLite,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenPostgres opens a Postgres database through the pgx stdlib driver
// and verifies it is reachable.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open(string(Postgres), dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.WithHint(
			errors.Wrap(err, "postgres unreachable"),
			"check database.dsn and that the server accepts connections",
		)
	}

	if logger != nil {
		logger.Infow("Database opened successfully", "driver", Postgres)
	}

	return db, nil
}

// Connect opens the configured database and applies pending migrations.
// target is a file path for SQLite and a DSN for Postgres.
func Connect(ctx context.Context, dialect Dialect, target string, logger *zap.SugaredLogger) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch dialect {
	case Postgres:
		db, err = OpenPostgres(ctx, target, logger)
	default:
		db, err = Open(target, logger)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := Migrate(db, dialect, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return db, nil
}

// OpenWithMigrations opens a SQLite database and runs all pending migrations.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	return Connect(context.Background(), SQLite, path, logger)
}
