package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/caremarket/parentry/errors"
)

// Set-valued columns are stored as JSON text so both dialects share one schema

func encodeSet(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", errors.Wrap(err, "encode set")
	}
	return string(b), nil
}

// encodeNullableSet stores nil or empty lists as NULL.
func encodeNullableSet(values []string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	s, err := encodeSet(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func decodeSet(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errors.Wrapf(err, "decode set %q", raw)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func decodeNullableSet(raw sql.NullString) ([]string, error) {
	if !raw.Valid {
		return nil, nil
	}
	values, err := decodeSet(raw.String)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
