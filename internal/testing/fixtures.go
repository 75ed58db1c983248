package testing

import (
	"database/sql"
	"testing"
)

// Facility is one licensed location row of a test extract.
type Facility struct {
	CCN        string
	Subsidiary string
	DBA        string
	State      string
}

// Owner is one disclosed ownership row of a test extract.
type Owner struct {
	Subsidiary string
	Name       string
	Type       string // defaults to ORGANIZATION
	Role       string
	Percentage *float64
	PE         bool
	REIT       bool
	Investment bool
}

// Ptr returns a pointer to v, for optional fixture fields such as percentages.
func Ptr[T any](v T) *T {
	return &v
}

// SeedDataset inserts a dataset version with the given status.
func SeedDataset(t *testing.T, conn *sql.DB, datasetID, status string) {
	t.Helper()
	_, err := conn.Exec(
		"INSERT INTO dataset_versions (dataset_id, status, record_count) VALUES (?, ?, 0)",
		datasetID, status,
	)
	if err != nil {
		t.Fatalf("Failed to seed dataset %s: %v", datasetID, err)
	}
}

// SeedFacilities inserts facility rows for a dataset and care type.
func SeedFacilities(t *testing.T, conn *sql.DB, datasetID, careType string, facilities ...Facility) {
	t.Helper()
	for _, f := range facilities {
		_, err := conn.Exec(`
			INSERT INTO ownership_facilities (dataset_id, care_type, ccn, subsidiary_name, dba_name, state)
			VALUES (?, ?, ?, ?, ?, ?)`,
			datasetID, careType, f.CCN, f.Subsidiary, nullString(f.DBA), nullString(f.State),
		)
		if err != nil {
			t.Fatalf("Failed to seed facility %s: %v", f.CCN, err)
		}
	}
}

// SeedOwners inserts ownership rows for a dataset and care type, in order.
func SeedOwners(t *testing.T, conn *sql.DB, datasetID, careType string, owners ...Owner) {
	t.Helper()
	for _, o := range owners {
		ownerType := o.Type
		if ownerType == "" {
			ownerType = "ORGANIZATION"
		}
		_, err := conn.Exec(`
			INSERT INTO ownership_records
				(dataset_id, care_type, subsidiary_name, owner_name, owner_type, role_text,
				 ownership_percentage, pe_flag, reit_flag, investment_firm_flag)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			datasetID, careType, o.Subsidiary, o.Name, ownerType, o.Role,
			o.Percentage, o.PE, o.REIT, o.Investment,
		)
		if err != nil {
			t.Fatalf("Failed to seed owner %s: %v", o.Name, err)
		}
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
