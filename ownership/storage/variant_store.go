package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/caremarket/parentry/db"
	"github.com/caremarket/parentry/errors"
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/normalize"
)

// VariantPolicy decides what happens when a variant already maps to a
// different canonical name.
type VariantPolicy string

const (
	// PolicyOverwrite replaces the mapping (last write wins)
	PolicyOverwrite VariantPolicy = "overwrite"
	// PolicyPreserve keeps the existing mapping and reports the drift
	PolicyPreserve VariantPolicy = "preserve"
)

// ParseVariantPolicy maps a variants.policy value to a VariantPolicy.
func ParseVariantPolicy(s string) (VariantPolicy, error) {
	switch VariantPolicy(s) {
	case PolicyOverwrite, "":
		return PolicyOverwrite, nil
	case PolicyPreserve:
		return PolicyPreserve, nil
	}
	return "", errors.NewInvalidRequestError("unknown variant policy %q", s)
}

// VariantStore persists raw-name to canonical-name mappings.
type VariantStore struct {
	db      *sql.DB
	dialect db.Dialect
	policy  VariantPolicy
	runID   string
}

// NewVariantStore creates a new name variant store.
func NewVariantStore(conn *sql.DB, dialect db.Dialect, policy VariantPolicy) *VariantStore {
	if policy == "" {
		policy = PolicyOverwrite
	}
	return &VariantStore{db: conn, dialect: dialect, policy: policy}
}

// ForRun returns a store that tags its writes with runID.
func (s *VariantStore) ForRun(runID string) *VariantStore {
	c := *s
	c.runID = runID
	return &c
}

// Policy returns the conflict policy in effect.
func (s *VariantStore) Policy() VariantPolicy {
	return s.policy
}

// VariantResult reports the effect of RecordVariant.
type VariantResult struct {
	// Written is false when the preserve policy kept an existing mapping
	Written bool
	// Drifted is true when the variant already mapped to another canonical name
	Drifted bool
	// Previous is the canonical name before this call, if any
	Previous string
}

// RecordVariant maps variant (raw spelling) to canonical within sourceContext.
// canonical is normalized before writing, so stored canonical names are
// always in normalized form.
func (s *VariantStore) RecordVariant(ctx context.Context, canonical, variant, sourceContext string) (VariantResult, error) {
	canonical = normalize.Key(canonical)
	variant = strings.TrimSpace(variant)
	if canonical == "" || variant == "" || sourceContext == "" {
		return VariantResult{}, errors.NewInvalidRequestError(
			"variant mapping is incomplete: %q -> %q (%s)", variant, canonical, sourceContext)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return VariantResult{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var result VariantResult
	var existing string
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT canonical_name FROM name_variants
		WHERE variant_name = ? AND source_context = ?`), variant, sourceContext).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return VariantResult{}, errors.Wrapf(err, "failed to look up variant %q", variant)
	default:
		result.Previous = existing
		result.Drifted = existing != canonical
	}

	if result.Drifted && s.policy == PolicyPreserve {
		return result, nil
	}

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO name_variants (variant_name, source_context, canonical_name, last_run_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (variant_name, source_context) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			last_run_id = excluded.last_run_id,
			updated_at = excluded.updated_at`),
		variant, sourceContext, canonical, nullString(s.runID), time.Now().UTC(),
	)
	if err != nil {
		return VariantResult{}, errors.Wrapf(err, "failed to record variant %q -> %q", variant, canonical)
	}

	if err := tx.Commit(); err != nil {
		return VariantResult{}, errors.Wrap(err, "failed to commit variant")
	}
	result.Written = true
	return result, nil
}

// Lookup returns the mapping for a variant in a context.
func (s *VariantStore) Lookup(ctx context.Context, variant, sourceContext string) (*ownership.NameVariant, error) {
	variant = strings.TrimSpace(variant)
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT variant_name, source_context, canonical_name, last_run_id, updated_at
		FROM name_variants
		WHERE variant_name = ? AND source_context = ?`), variant, sourceContext)

	v, err := scanVariant(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("variant %q in %s", variant, sourceContext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up variant %q", variant)
	}
	return v, nil
}

// ListFor returns every variant mapped to canonical, ordered by context and spelling.
func (s *VariantStore) ListFor(ctx context.Context, canonical string) ([]ownership.NameVariant, error) {
	return s.list(ctx, `WHERE canonical_name = ?`, 0, normalize.Key(canonical))
}

// List returns all variants; limit <= 0 returns every row.
func (s *VariantStore) List(ctx context.Context, limit int) ([]ownership.NameVariant, error) {
	return s.list(ctx, ``, limit)
}

func (s *VariantStore) list(ctx context.Context, where string, limit int, args ...interface{}) ([]ownership.NameVariant, error) {
	query := `
		SELECT variant_name, source_context, canonical_name, last_run_id, updated_at
		FROM name_variants ` + where + `
		ORDER BY source_context, variant_name`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list variants")
	}
	defer rows.Close()

	var out []ownership.NameVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan variant")
		}
		out = append(out, *v)
	}
	return out, errors.Wrap(rows.Err(), "iterate variants")
}

func scanVariant(sc scanner) (*ownership.NameVariant, error) {
	var (
		v     ownership.NameVariant
		runID sql.NullString
	)
	if err := sc.Scan(&v.VariantName, &v.SourceContext, &v.CanonicalName, &runID, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.LastRunID = runID.String
	return &v, nil
}
