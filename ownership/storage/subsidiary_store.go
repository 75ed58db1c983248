package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/caremarket/parentry/db"
	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/normalize"
)

// SubsidiaryStore persists resolved parent assignments. Automated writes
// never modify rows whose source is manual.
type SubsidiaryStore struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSubsidiaryStore creates a new subsidiary registry store.
func NewSubsidiaryStore(conn *sql.DB, dialect db.Dialect) *SubsidiaryStore {
	return &SubsidiaryStore{db: conn, dialect: dialect}
}

// UpsertResult reports the effect of an automated write.
type UpsertResult struct {
	// Protected is true when a manual row blocked the write
	Protected bool
}

const subsidiaryColumns = `subsidiary_name, care_type, canonical_parent_name, parent_role,
	parent_ownership_percentage, agency_count, states_operated, dba_names, pe_investors,
	verified, source, last_run_id, dataset_id, updated_at`

// Upsert writes an automated row keyed by (subsidiary_name, care_type).
// The row is always written as source 'auto' and unverified.
func (s *SubsidiaryStore) Upsert(ctx context.Context, row ownership.Subsidiary) (UpsertResult, error) {
	if row.Key.Name == "" || row.Key.CareType == "" {
		return UpsertResult{}, errors.NewInvalidRequestError("subsidiary key is incomplete: %q", row.Key.String())
	}

	states, err := encodeSet(row.States)
	if err != nil {
		return UpsertResult{}, err
	}
	dbas, err := encodeSet(row.DBANames)
	if err != nil {
		return UpsertResult{}, err
	}
	investors, err := encodeNullableSet(row.PEInvestors)
	if err != nil {
		return UpsertResult{}, err
	}

	var parent sql.NullString
	if row.CanonicalParent != nil {
		parent = nullString(*row.CanonicalParent)
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO subsidiaries (`+subsidiaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, 'auto', ?, ?, ?)
		ON CONFLICT (subsidiary_name, care_type) DO UPDATE SET
			canonical_parent_name = excluded.canonical_parent_name,
			parent_role = excluded.parent_role,
			parent_ownership_percentage = excluded.parent_ownership_percentage,
			agency_count = excluded.agency_count,
			states_operated = excluded.states_operated,
			dba_names = excluded.dba_names,
			pe_investors = excluded.pe_investors,
			verified = excluded.verified,
			last_run_id = excluded.last_run_id,
			dataset_id = excluded.dataset_id,
			updated_at = excluded.updated_at
		WHERE subsidiaries.source = 'auto'`),
		row.Key.Name, row.Key.CareType, parent, nullString(string(row.ParentRole)),
		nullFloat(row.ParentPercentage), row.AgencyCount, states, dbas, investors,
		nullString(row.LastRunID), nullString(row.DatasetID), time.Now().UTC(),
	)
	if err != nil {
		return UpsertResult{}, errors.Wrapf(err, "failed to upsert subsidiary %s", row.Key)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return UpsertResult{}, errors.Wrapf(err, "rows affected for %s", row.Key)
	}
	return UpsertResult{Protected: n == 0}, nil
}

// Sweep deletes auto rows of careType not written by runID, except the keys
// in keep. It returns the number of rows removed. Manual rows are never swept.
func (s *SubsidiaryStore) Sweep(ctx context.Context, careType, runID string, keep []ownership.SubsidiaryKey) (int, error) {
	if runID == "" {
		return 0, errors.NewInvalidRequestError("sweep requires a run id")
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		if k.CareType == careType {
			kept[k.Name] = true
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin sweep transaction")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, s.dialect.Rebind(`
		SELECT subsidiary_name
		FROM subsidiaries
		WHERE care_type = ? AND source = 'auto'
		  AND (last_run_id IS NULL OR last_run_id <> ?)`), careType, runID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to find stale rows for %s", careType)
	}

	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, errors.Wrap(err, "failed to scan stale row")
		}
		if !kept[name] {
			stale = append(stale, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "iterate stale rows")
	}

	del := s.dialect.Rebind(`
		DELETE FROM subsidiaries
		WHERE subsidiary_name = ? AND care_type = ? AND source = 'auto'`)
	for _, name := range stale {
		if _, err := tx.ExecContext(ctx, del, name, careType); err != nil {
			return 0, errors.Wrapf(err, "failed to sweep %s/%s", careType, name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit sweep")
	}
	return len(stale), nil
}

// SetManual creates or converts a row to a manual override. Both the key and
// the parent are normalized; an empty parent records a curated orphan.
func (s *SubsidiaryStore) SetManual(ctx context.Context, key ownership.SubsidiaryKey, parent string, verified bool) error {
	key.Name = normalize.Key(key.Name)
	if key.Name == "" || key.CareType == "" {
		return errors.NewInvalidRequestError("subsidiary key is incomplete: %q", key.String())
	}

	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO subsidiaries (subsidiary_name, care_type, canonical_parent_name, verified, source, updated_at)
		VALUES (?, ?, ?, ?, 'manual', ?)
		ON CONFLICT (subsidiary_name, care_type) DO UPDATE SET
			canonical_parent_name = excluded.canonical_parent_name,
			verified = excluded.verified,
			source = 'manual',
			updated_at = excluded.updated_at`),
		key.Name, key.CareType, nullString(normalize.Key(parent)), verified, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set manual parent for %s", key)
	}
	return nil
}

// Release hands a manual row back to automated runs. The next run refreshes
// it, or sweeps it if the subsidiary is no longer in the dataset.
func (s *SubsidiaryStore) Release(ctx context.Context, key ownership.SubsidiaryKey) error {
	key.Name = normalize.Key(key.Name)

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE subsidiaries
		SET source = 'auto', verified = FALSE, last_run_id = NULL, updated_at = ?
		WHERE subsidiary_name = ? AND care_type = ? AND source = 'manual'`),
		time.Now().UTC(), key.Name, key.CareType,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to release %s", key)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "rows affected for %s", key)
	}
	if n == 0 {
		return errors.NewNotFoundError("no manual row for %s", key)
	}
	return nil
}

// Get returns one registry row.
func (s *SubsidiaryStore) Get(ctx context.Context, key ownership.SubsidiaryKey) (*ownership.Subsidiary, error) {
	key.Name = normalize.Key(key.Name)

	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT `+subsidiaryColumns+`
		FROM subsidiaries
		WHERE subsidiary_name = ? AND care_type = ?`), key.Name, key.CareType)

	sub, err := scanSubsidiary(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("subsidiary %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get subsidiary %s", key)
	}
	return sub, nil
}

// List returns registry rows ordered by care type and name. An empty
// careType lists every care type; limit <= 0 returns all rows.
func (s *SubsidiaryStore) List(ctx context.Context, careType string, limit int) ([]ownership.Subsidiary, error) {
	query := `SELECT ` + subsidiaryColumns + ` FROM subsidiaries`
	var args []interface{}
	if careType != "" {
		query += ` WHERE care_type = ?`
		args = append(args, careType)
	}
	query += ` ORDER BY care_type, subsidiary_name`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subsidiaries")
	}
	defer rows.Close()

	var out []ownership.Subsidiary
	for rows.Next() {
		sub, err := scanSubsidiary(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan subsidiary")
		}
		out = append(out, *sub)
	}
	return out, errors.Wrap(rows.Err(), "iterate subsidiaries")
}

func scanSubsidiary(sc scanner) (*ownership.Subsidiary, error) {
	var (
		sub                            ownership.Subsidiary
		parent, role, lastRun, dataset sql.NullString
		investors                      sql.NullString
		pct                            sql.NullFloat64
		states, dbas, source           string
	)
	err := sc.Scan(
		&sub.Key.Name, &sub.Key.CareType, &parent, &role, &pct, &sub.AgencyCount,
		&states, &dbas, &investors, &sub.Verified, &source, &lastRun, &dataset, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parent.Valid {
		p := parent.String
		sub.CanonicalParent = &p
	}
	sub.ParentRole = ownership.Role(role.String)
	sub.ParentPercentage = floatPtr(pct)
	sub.Source = ownership.Source(source)
	sub.LastRunID = lastRun.String
	sub.DatasetID = dataset.String

	if sub.States, err = decodeSet(states); err != nil {
		return nil, err
	}
	if sub.DBANames, err = decodeSet(dbas); err != nil {
		return nil, err
	}
	if sub.PEInvestors, err = decodeNullableSet(investors); err != nil {
		return nil, err
	}
	return &sub, nil
}
