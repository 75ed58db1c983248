package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/caremarket/parentry/db"
	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership"
)

// RunStore records the resolution run log.
type RunStore struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewRunStore creates a new run log store.
func NewRunStore(conn *sql.DB, dialect db.Dialect) *RunStore {
	return &RunStore{db: conn, dialect: dialect}
}

const runColumns = `run_id, dataset_id, care_type, status, dry_run, started_at, completed_at,
	processed, assigned, orphaned, skipped, protected, unique_parents, distinct_states,
	variants_recorded, variant_drift, swept, errors`

// Start inserts a run in the running state.
func (s *RunStore) Start(ctx context.Context, run ownership.Run) error {
	if run.ID == "" {
		return errors.NewInvalidRequestError("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO resolution_runs (run_id, dataset_id, care_type, status, dry_run, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID, run.DatasetID, run.CareType, string(ownership.RunRunning), run.DryRun, run.StartedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to start run %s", run.ID)
	}
	return nil
}

// Finish records the terminal status, counts and row errors of a run.
func (s *RunStore) Finish(ctx context.Context, run ownership.Run) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return errors.Wrap(err, "encode run errors")
	}

	completed := time.Now().UTC()
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}

	c := run.Counts
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE resolution_runs SET
			status = ?, completed_at = ?,
			processed = ?, assigned = ?, orphaned = ?, skipped = ?, protected = ?,
			unique_parents = ?, distinct_states = ?, variants_recorded = ?,
			variant_drift = ?, swept = ?, errors = ?
		WHERE run_id = ?`),
		string(run.Status), completed,
		c.Processed, c.Assigned, c.Orphaned, c.Skipped, c.Protected,
		c.UniqueParents, c.DistinctStates, c.VariantsRecorded,
		c.VariantDrift, c.Swept, string(errJSON),
		run.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to finish run %s", run.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("run %s", run.ID)
	}
	return nil
}

// Get returns one run.
func (s *RunStore) Get(ctx context.Context, runID string) (*ownership.Run, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT `+runColumns+` FROM resolution_runs WHERE run_id = ?`), runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("run %s", runID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get run %s", runID)
	}
	return run, nil
}

// Latest returns the most recently started run.
func (s *RunStore) Latest(ctx context.Context) (*ownership.Run, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NewNotFoundError("no resolution runs recorded")
	}
	return &runs[0], nil
}

// List returns runs, newest first; limit <= 0 returns all.
func (s *RunStore) List(ctx context.Context, limit int) ([]ownership.Run, error) {
	query := `SELECT ` + runColumns + ` FROM resolution_runs ORDER BY started_at DESC, run_id DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var out []ownership.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		out = append(out, *run)
	}
	return out, errors.Wrap(rows.Err(), "iterate runs")
}

func scanRun(sc scanner) (*ownership.Run, error) {
	var (
		run       ownership.Run
		status    string
		completed sql.NullTime
		errJSON   string
	)
	c := &run.Counts
	err := sc.Scan(
		&run.ID, &run.DatasetID, &run.CareType, &status, &run.DryRun, &run.StartedAt, &completed,
		&c.Processed, &c.Assigned, &c.Orphaned, &c.Skipped, &c.Protected, &c.UniqueParents,
		&c.DistinctStates, &c.VariantsRecorded, &c.VariantDrift, &c.Swept, &errJSON,
	)
	if err != nil {
		return nil, err
	}

	run.Status = ownership.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	if errJSON != "" {
		if err := json.Unmarshal([]byte(errJSON), &run.Errors); err != nil {
			return nil, errors.Wrapf(err, "decode errors of run %s", run.ID)
		}
	}
	return &run, nil
}
