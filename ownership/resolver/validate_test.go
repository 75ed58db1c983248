package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremarket/parentry/ownership"
)

func (h *harness) validator() *Validator {
	return &Validator{
		Subsidiaries: h.subsidiaries,
		Variants:     h.variants,
		Runs:         h.runs,
		Classifier:   h.classifier,
	}
}

func TestValidate_CleanRegistry(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	ctx := context.Background()

	_, err := h.engine(t, Config{}).Run(ctx)
	require.NoError(t, err)

	report, err := h.validator().Validate(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "findings: %v", report.Findings)
	assert.Equal(t, 1, report.Subsidiaries)
	assert.Equal(t, 4, report.Variants)
	require.NotNil(t, report.LatestRun)
	assert.Equal(t, ownership.RunCompleted, report.LatestRun.Status)
}

func TestValidate_NoRunRecorded(t *testing.T) {
	h := newHarness(t)

	report, err := h.validator().Validate(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, CheckLatestRun, report.Findings[0].Check)
}

func TestValidate_Findings(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	ctx := context.Background()

	_, err := h.engine(t, Config{}).Run(ctx)
	require.NoError(t, err)

	key := ownership.SubsidiaryKey{Name: "DESERT HOSPICE", CareType: "HOSPICE"}
	require.NoError(t, h.subsidiaries.SetManual(ctx, key, "Bain Capital Double Impact", false))

	_, err = h.conn.Exec(`
		INSERT INTO name_variants (variant_name, source_context, canonical_name)
		VALUES ('The Ensign Group, Inc.', 'ownership_parent', 'The Ensign Group, Inc.')`)
	require.NoError(t, err)

	report, err := h.validator().Validate(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())

	checks := make(map[string]string)
	for _, f := range report.Findings {
		checks[f.Check] = f.Subject
	}
	assert.Equal(t, map[string]string{
		CheckInvestmentParent: "HOSPICE/DESERT HOSPICE",
		CheckVariantCanonical: "ownership_parent/The Ensign Group, Inc.",
	}, checks)
}

func TestValidate_FailedLatestRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.runs.Start(ctx, ownership.Run{ID: "run_1", DatasetID: testDataset}))
	require.NoError(t, h.runs.Finish(ctx, ownership.Run{ID: "run_1", Status: ownership.RunFailed}))

	report, err := h.validator().Validate(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "run_1", report.Findings[0].Subject)
	assert.Contains(t, report.Findings[0].String(), "latest run is failed")
}
