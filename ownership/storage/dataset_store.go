package storage

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/caremarket/parentry/db"
	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/internal/util"
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/normalize"
)

// DatasetStore reads imported ownership extracts.
type DatasetStore struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewDatasetStore creates a new dataset store.
func NewDatasetStore(conn *sql.DB, dialect db.Dialect) *DatasetStore {
	return &DatasetStore{db: conn, dialect: dialect}
}

const noDatasetHint = "import an ownership extract and mark its dataset_versions row 'completed'"

// Latest returns the usable dataset version: the greatest completed dataset_id.
func (s *DatasetStore) Latest(ctx context.Context) (*ownership.DatasetVersion, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT dataset_id, status, imported_at, record_count
		FROM dataset_versions
		WHERE status = ?
		ORDER BY dataset_id DESC
		LIMIT 1`), string(ownership.DatasetCompleted))

	v, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithHint(errors.Wrap(errors.ErrNoDataset, "latest dataset"), noDatasetHint)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query latest dataset")
	}
	return v, nil
}

// Get returns a specific dataset version. Versions that are not completed
// are not usable and are reported as ErrNoDataset.
func (s *DatasetStore) Get(ctx context.Context, datasetID string) (*ownership.DatasetVersion, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT dataset_id, status, imported_at, record_count
		FROM dataset_versions
		WHERE dataset_id = ?`), datasetID)

	v, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithHint(errors.Wrapf(errors.ErrNoDataset, "dataset %s not found", datasetID), noDatasetHint)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query dataset %s", datasetID)
	}
	if v.Status != ownership.DatasetCompleted {
		return nil, errors.Wrapf(errors.ErrNoDataset, "dataset %s is %s", datasetID, v.Status)
	}
	return v, nil
}

// List returns all dataset versions, newest first.
func (s *DatasetStore) List(ctx context.Context) ([]ownership.DatasetVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset_id, status, imported_at, record_count
		FROM dataset_versions
		ORDER BY dataset_id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list datasets")
	}
	defer rows.Close()

	var out []ownership.DatasetVersion
	for rows.Next() {
		v, err := scanDataset(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan dataset")
		}
		out = append(out, *v)
	}
	return out, errors.Wrap(rows.Err(), "iterate datasets")
}

// CareTypes returns the care types present in a dataset version.
func (s *DatasetStore) CareTypes(ctx context.Context, datasetID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT DISTINCT care_type
		FROM ownership_facilities
		WHERE dataset_id = ?
		ORDER BY care_type`), datasetID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list care types for %s", datasetID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ct string
		if err := rows.Scan(&ct); err != nil {
			return nil, errors.Wrap(err, "failed to scan care type")
		}
		out = append(out, ct)
	}
	return out, errors.Wrap(rows.Err(), "iterate care types")
}

// Subsidiaries groups the facility rows of a dataset version and care type
// by normalized subsidiary name, sorted by name. limit <= 0 returns all.
func (s *DatasetStore) Subsidiaries(ctx context.Context, datasetID, careType string, limit int) ([]ownership.SubsidiaryInput, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT subsidiary_name, ccn, dba_name, state
		FROM ownership_facilities
		WHERE dataset_id = ? AND care_type = ?
		ORDER BY id`), datasetID, careType)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query facilities for %s/%s", datasetID, careType)
	}
	defer rows.Close()

	type group struct {
		input  ownership.SubsidiaryInput
		raw    map[string]bool
		ccns   map[string]bool
		states []string
		dbas   []string
	}
	groups := make(map[string]*group)

	for rows.Next() {
		var (
			name, ccn  string
			dba, state sql.NullString
		)
		if err := rows.Scan(&name, &ccn, &dba, &state); err != nil {
			return nil, errors.Wrap(err, "failed to scan facility")
		}

		key := normalize.Key(name)
		if key == "" {
			continue
		}

		g, ok := groups[key]
		if !ok {
			g = &group{
				input: ownership.SubsidiaryInput{Key: ownership.SubsidiaryKey{Name: key, CareType: careType}},
				raw:   make(map[string]bool),
				ccns:  make(map[string]bool),
			}
			groups[key] = g
		}

		if !g.raw[name] {
			g.raw[name] = true
			g.input.RawNames = append(g.input.RawNames, name)
		}
		g.ccns[ccn] = true
		g.states = append(g.states, strings.ToUpper(strings.TrimSpace(state.String)))
		g.dbas = append(g.dbas, strings.TrimSpace(dba.String))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate facilities")
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]ownership.SubsidiaryInput, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		g.input.AgencyCount = len(g.ccns)
		g.input.States = util.SortedUnique(g.states)
		g.input.DBANames = util.SortedUnique(g.dbas)
		out = append(out, g.input)
	}
	return out, nil
}

// Owners returns the organizational ownership records disclosed for any of
// a subsidiary's raw names, in disclosure order. Individuals are excluded.
func (s *DatasetStore) Owners(ctx context.Context, datasetID, careType string, rawNames []string) ([]ownership.OwnershipRecord, error) {
	if len(rawNames) == 0 {
		return nil, nil
	}

	query, args, err := s.dialect.In(`
		SELECT subsidiary_name, owner_name, role_text, ownership_percentage,
		       pe_flag, reit_flag, investment_firm_flag
		FROM ownership_records
		WHERE dataset_id = ? AND care_type = ? AND owner_type = 'ORGANIZATION'
		  AND subsidiary_name IN (?)
		ORDER BY id`, datasetID, careType, rawNames)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query ownership records")
	}
	defer rows.Close()

	var out []ownership.OwnershipRecord
	for rows.Next() {
		var (
			rec            ownership.OwnershipRecord
			role           sql.NullString
			pct            sql.NullFloat64
			pe, reit, firm sql.NullBool
		)
		if err := rows.Scan(&rec.SubsidiaryName, &rec.OwnerName, &role, &pct, &pe, &reit, &firm); err != nil {
			return nil, errors.Wrap(err, "failed to scan ownership record")
		}
		rec.Role = ownership.ParseRole(role.String)
		rec.Percentage = floatPtr(pct)
		rec.PEFlag = pe.Valid && pe.Bool
		rec.REITFlag = reit.Valid && reit.Bool
		rec.InvestmentFirmFlag = firm.Valid && firm.Bool
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate ownership records")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDataset(sc scanner) (*ownership.DatasetVersion, error) {
	var (
		v      ownership.DatasetVersion
		status string
	)
	if err := sc.Scan(&v.ID, &status, &v.ImportedAt, &v.RecordCount); err != nil {
		return nil, err
	}
	v.Status = ownership.DatasetStatus(status)
	return &v, nil
}
