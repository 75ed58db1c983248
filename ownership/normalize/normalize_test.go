package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Acme Healthcare, LLC", "ACME HEALTHCARE"},
		{"ACME HEALTHCARE LLC", "ACME HEALTHCARE"},
		{"acme   healthcare  l.l.c.", "ACME HEALTHCARE"},
		{"THE PENNANT GROUP, INC.", "PENNANT GROUP"},
		{"The Pennant Group Inc", "PENNANT GROUP"},
		{"Mohave Healthcare Inc", "MOHAVE HEALTHCARE"},
		{"Blue River Fund III, L.P.", "BLUE RIVER FUND III"},
		{"Desert Hospice PLLC", "DESERT HOSPICE"},
		{"Desert Hospice, P.L.L.C.", "DESERT HOSPICE"},
		{"Summit Partners LLP", "SUMMIT PARTNERS"},
		{"Ensign Services Corporation", "ENSIGN SERVICES"},
		{"Ensign Services Corp.", "ENSIGN SERVICES"},
		{"Harbor Care Ltd.", "HARBOR CARE"},
		{"Valley Physicians, P.C.", "VALLEY PHYSICIANS"},
		{"ABC Holdings Co., Inc.", "ABC HOLDINGS"},
		{"Smith & Co.", "SMITH"},
		{"Costco", "COSTCO"},
		{"Amedisys Incorporated", "AMEDISYS"},
		{"  Addus   HomeCare  ", "ADDUS HOMECARE"},
		{"THE THE ODD NAME", "ODD NAME"},
		{"THE", "THE"},
		{"INC", "INC"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.raw))
		})
	}
}

func TestNormalize_KeepsOriginal(t *testing.T) {
	n := Normalize("THE PENNANT GROUP, INC.")
	assert.Equal(t, "PENNANT GROUP", n.Normalized)
	assert.Equal(t, "THE PENNANT GROUP, INC.", n.Original)

	empty := Normalize("")
	assert.Equal(t, Name{}, empty)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		" ",
		"Acme Healthcare, LLC",
		"THE PENNANT GROUP, INC.",
		"ABC Holdings Co., Inc.",
		"Blue River Fund III, L.P.",
		"the  the company co",
		"A.B.C., L.L.C., INC.",
		"Foo -",
		"X, LP, LLC",
		"St. Luke's Home Health, Inc.",
	}

	for _, in := range inputs {
		once := Key(in)
		assert.Equal(t, once, Key(once), "Key(Key(%q))", in)
	}
}

func TestUpper(t *testing.T) {
	assert.Equal(t, "BLUE RIVER FUND III, L.P.", Upper("  Blue  River Fund III,\tL.P. "))
}
