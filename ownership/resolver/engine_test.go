package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/caremarket/parentry/db"
	"github.com/caremarket/parentry/errors"
	ptest "github.com/caremarket/parentry/internal/testing"
	"github.com/caremarket/parentry/metrics"
	"github.com/caremarket/parentry/ownership"
	"github.com/caremarket/parentry/ownership/classify"
	"github.com/caremarket/parentry/ownership/storage"
)

const (
	testDataset = "202503"
	homeHealth  = "HOME_HEALTH"
)

type harness struct {
	conn         *sql.DB
	datasets     *storage.DatasetStore
	subsidiaries *storage.SubsidiaryStore
	variants     *storage.VariantStore
	runs         *storage.RunStore
	classifier   *classify.Classifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, ptest.CreateTestDB(t))
}

func newHarnessOn(t *testing.T, conn *sql.DB) *harness {
	t.Helper()
	c, err := classify.NewDefault()
	require.NoError(t, err)
	return &harness{
		conn:         conn,
		datasets:     storage.NewDatasetStore(conn, db.SQLite),
		subsidiaries: storage.NewSubsidiaryStore(conn, db.SQLite),
		variants:     storage.NewVariantStore(conn, db.SQLite, storage.PolicyOverwrite),
		runs:         storage.NewRunStore(conn, db.SQLite),
		classifier:   c,
	}
}

func (h *harness) engine(t *testing.T, cfg Config) *Engine {
	return h.engineWith(t, cfg, h.datasets)
}

func (h *harness) engineWith(t *testing.T, cfg Config, datasets DatasetSource) *Engine {
	if cfg.RunID == "" {
		cfg.RunID = NewRunID(time.Now())
	}
	deps := Deps{
		Datasets:     datasets,
		Subsidiaries: h.subsidiaries,
		Variants:     h.variants.ForRun(cfg.RunID),
		Runs:         h.runs,
		Classifier:   h.classifier,
		Metrics:      metrics.New(),
	}
	return NewEngine(deps, cfg, zaptest.NewLogger(t).Sugar())
}

// seedPennant loads the Mohave Healthcare scenario.
func (h *harness) seedPennant(t *testing.T) {
	ptest.SeedDataset(t, h.conn, testDataset, "completed")
	ptest.SeedFacilities(t, h.conn, testDataset, homeHealth,
		ptest.Facility{CCN: "037001", Subsidiary: "Mohave Healthcare Inc", DBA: "Pennant Home Health", State: "AZ"},
		ptest.Facility{CCN: "297002", Subsidiary: "MOHAVE HEALTHCARE, INC.", DBA: "Pennant Home Health", State: "nv"},
	)
	ptest.SeedOwners(t, h.conn, testDataset, homeHealth,
		ptest.Owner{Subsidiary: "Mohave Healthcare Inc", Name: "THE PENNANT GROUP, INC.", Role: "5% OR GREATER INDIRECT OWNERSHIP INTEREST", Percentage: ptest.Ptr(100.0)},
		ptest.Owner{Subsidiary: "Mohave Healthcare Inc", Name: "Pennant Group Holdings LP", Role: "5% OR GREATER DIRECT OWNERSHIP INTEREST", Percentage: ptest.Ptr(100.0), PE: true},
		ptest.Owner{Subsidiary: "Mohave Healthcare Inc", Name: "Jane Doe", Type: "INDIVIDUAL", Role: "MANAGING EMPLOYEE"},
	)
}

func TestEngine_ResolvesOperatingParent(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	ctx := context.Background()

	e := h.engine(t, Config{Workers: 2})
	summary, err := e.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, ownership.RunCompleted, summary.Status)
	assert.Equal(t, testDataset, summary.DatasetID)
	assert.Equal(t, []string{homeHealth}, summary.CareTypes)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Assigned)
	assert.Equal(t, 0, summary.Orphaned)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.UniqueParents)
	assert.Equal(t, 2, summary.DistinctStates)
	assert.Equal(t, []string{"PENNANT GROUP"}, summary.Parents)
	assert.Equal(t, []string{"AZ", "NV"}, summary.States)
	// two subsidiary spellings, one parent, one investor
	assert.Equal(t, 4, summary.VariantsRecorded)

	sub, err := h.subsidiaries.Get(ctx, ownership.SubsidiaryKey{Name: "MOHAVE HEALTHCARE", CareType: homeHealth})
	require.NoError(t, err)
	require.NotNil(t, sub.CanonicalParent)
	assert.Equal(t, "PENNANT GROUP", *sub.CanonicalParent)
	assert.Equal(t, ownership.RoleIndirect, sub.ParentRole)
	assert.Equal(t, 100.0, *sub.ParentPercentage)
	assert.Equal(t, []string{"Pennant Group Holdings LP"}, sub.PEInvestors)
	assert.Equal(t, 2, sub.AgencyCount)
	assert.Equal(t, []string{"AZ", "NV"}, sub.States)
	assert.Equal(t, []string{"Pennant Home Health"}, sub.DBANames)
	assert.Equal(t, ownership.SourceAuto, sub.Source)
	assert.False(t, sub.Verified)
	assert.Equal(t, e.RunID(), sub.LastRunID)

	v, err := h.variants.Lookup(ctx, "THE PENNANT GROUP, INC.", ownership.ContextParent)
	require.NoError(t, err)
	assert.Equal(t, "PENNANT GROUP", v.CanonicalName)
	assert.Equal(t, e.RunID(), v.LastRunID)

	v, err = h.variants.Lookup(ctx, "MOHAVE HEALTHCARE, INC.", ownership.ContextSubsidiary)
	require.NoError(t, err)
	assert.Equal(t, "MOHAVE HEALTHCARE", v.CanonicalName)

	v, err = h.variants.Lookup(ctx, "Pennant Group Holdings LP", ownership.ContextInvestor)
	require.NoError(t, err)
	assert.Equal(t, "PENNANT GROUP HOLDINGS", v.CanonicalName)

	run, err := h.runs.Get(ctx, e.RunID())
	require.NoError(t, err)
	assert.Equal(t, ownership.RunCompleted, run.Status)
	assert.Equal(t, summary.RunCounts, run.Counts)
	assert.Empty(t, run.Errors)
}

func TestEngine_ConcurrentWorkersOnFileDatabase(t *testing.T) {
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "parentry.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	h := newHarnessOn(t, conn)

	const subsidiaries = 200
	ptest.SeedDataset(t, conn, testDataset, "completed")
	for i := 0; i < subsidiaries; i++ {
		name := fmt.Sprintf("Sub %d Home Health LLC", i)
		ptest.SeedFacilities(t, conn, testDataset, homeHealth,
			ptest.Facility{CCN: fmt.Sprintf("%06d", i), Subsidiary: name, State: "AZ"})
		ptest.SeedOwners(t, conn, testDataset, homeHealth,
			ptest.Owner{Subsidiary: name, Name: fmt.Sprintf("Parent %d LLC", i%10), Role: "5% OR GREATER INDIRECT OWNERSHIP INTEREST"},
			ptest.Owner{Subsidiary: name, Name: "Blue River Fund III, L.P.", Role: "5% OR GREATER DIRECT OWNERSHIP INTEREST"},
		)
	}

	for _, workers := range []int{4, 16} {
		summary, err := h.engine(t, Config{Workers: workers}).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ownership.RunCompleted, summary.Status, "workers=%d: %v", workers, summary.Messages())
		assert.Equal(t, subsidiaries, summary.Processed)
		assert.Equal(t, subsidiaries, summary.Assigned)
		assert.Equal(t, 0, summary.Skipped)
		assert.Equal(t, 10, summary.UniqueParents)
	}
}

func TestEngine_RerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	ctx := context.Background()

	_, err := h.engine(t, Config{}).Run(ctx)
	require.NoError(t, err)
	second, err := h.engine(t, Config{}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Assigned)
	assert.Equal(t, 0, second.Swept)
	assert.Equal(t, 0, second.VariantDrift)

	all, err := h.subsidiaries.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	variants, err := h.variants.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, variants, 4)
}

func TestEngine_OrphansExcludedByDefault(t *testing.T) {
	h := newHarness(t)
	ptest.SeedDataset(t, h.conn, testDataset, "completed")
	ptest.SeedFacilities(t, h.conn, testDataset, homeHealth,
		ptest.Facility{CCN: "057001", Subsidiary: "Sunrise Home Care LLC", State: "CA"})
	ptest.SeedOwners(t, h.conn, testDataset, homeHealth,
		ptest.Owner{Subsidiary: "Sunrise Home Care LLC", Name: "Blue River Fund III, L.P.", Role: "INDIRECT"},
		ptest.Owner{Subsidiary: "Sunrise Home Care LLC", Name: "Welltower OpCo Group LLC", Role: "DIRECT", REIT: true},
	)
	ctx := context.Background()

	summary, err := h.engine(t, Config{}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Orphaned)
	assert.Equal(t, 0, summary.Assigned)
	assert.Equal(t, 0, summary.UniqueParents)
	assert.Equal(t, 0, summary.DistinctStates)

	_, err = h.subsidiaries.Get(ctx, ownership.SubsidiaryKey{Name: "SUNRISE HOME CARE", CareType: homeHealth})
	assert.True(t, errors.IsNotFoundError(err))

	v, err := h.variants.Lookup(ctx, "Blue River Fund III, L.P.", ownership.ContextInvestor)
	require.NoError(t, err)
	assert.Equal(t, "BLUE RIVER FUND III", v.CanonicalName)
}

func TestEngine_RecordOrphans(t *testing.T) {
	h := newHarness(t)
	ptest.SeedDataset(t, h.conn, testDataset, "completed")
	ptest.SeedFacilities(t, h.conn, testDataset, homeHealth,
		ptest.Facility{CCN: "057001", Subsidiary: "Sunrise Home Care LLC", State: "CA"})
	ptest.SeedOwners(t, h.conn, testDataset, homeHealth,
		ptest.Owner{Subsidiary: "Sunrise Home Care LLC", Name: "Blue River Fund III, L.P.", Role: "INDIRECT"})
	ctx := context.Background()

	summary, err := h.engine(t, Config{RecordOrphans: true}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Orphaned)

	sub, err := h.subsidiaries.Get(ctx, ownership.SubsidiaryKey{Name: "SUNRISE HOME CARE", CareType: homeHealth})
	require.NoError(t, err)
	assert.Nil(t, sub.CanonicalParent)
	assert.Equal(t, []string{"Blue River Fund III, L.P."}, sub.PEInvestors)
}

func TestEngine_ManualRowsProtected(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	ctx := context.Background()

	key := ownership.SubsidiaryKey{Name: "MOHAVE HEALTHCARE", CareType: homeHealth}
	require.NoError(t, h.subsidiaries.SetManual(ctx, key, "Ensign Group", true))

	summary, err := h.engine(t, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Protected)
	assert.Equal(t, 0, summary.Assigned)
	assert.Equal(t, 0, summary.Swept)

	sub, err := h.subsidiaries.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "ENSIGN GROUP", *sub.CanonicalParent)
	assert.Equal(t, ownership.SourceManual, sub.Source)
	assert.True(t, sub.Verified)
}

func seedStale(t *testing.T, h *harness, name string) {
	t.Helper()
	_, err := h.subsidiaries.Upsert(context.Background(), ownership.Subsidiary{
		Key:             ownership.SubsidiaryKey{Name: name, CareType: homeHealth},
		CanonicalParent: ptest.Ptr("OLD PARENT"),
		LastRunID:       "run_20240101_000000_00000000",
		DatasetID:       "202401",
	})
	require.NoError(t, err)
}

func TestEngine_SweepsStaleRows(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	seedStale(t, h, "DISSOLVED HOME HEALTH")
	ctx := context.Background()

	summary, err := h.engine(t, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Swept)

	_, err = h.subsidiaries.Get(ctx, ownership.SubsidiaryKey{Name: "DISSOLVED HOME HEALTH", CareType: homeHealth})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestEngine_DryRunWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	seedStale(t, h, "DISSOLVED HOME HEALTH")
	ctx := context.Background()

	summary, err := h.engine(t, Config{DryRun: true}).Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Assigned)
	assert.Equal(t, 0, summary.VariantsRecorded)
	assert.Equal(t, 0, summary.Swept)

	all, err := h.subsidiaries.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "DISSOLVED HOME HEALTH", all[0].Key.Name)

	variants, err := h.variants.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, variants)

	runs, err := h.runs.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_LimitedRunNeverSweeps(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	ptest.SeedFacilities(t, h.conn, testDataset, homeHealth,
		ptest.Facility{CCN: "037009", Subsidiary: "Yuma Home Health LLC", State: "AZ"})
	seedStale(t, h, "DISSOLVED HOME HEALTH")
	ctx := context.Background()

	summary, err := h.engine(t, Config{Limit: 1}).Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Limited)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Swept)

	_, err = h.subsidiaries.Get(ctx, ownership.SubsidiaryKey{Name: "DISSOLVED HOME HEALTH", CareType: homeHealth})
	assert.NoError(t, err)
}

func TestEngine_CareTypeFilter(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	ptest.SeedFacilities(t, h.conn, testDataset, "HOSPICE",
		ptest.Facility{CCN: "031500", Subsidiary: "Desert Hospice LLC", State: "AZ"})
	ctx := context.Background()

	summary, err := h.engine(t, Config{CareTypes: []string{"HOSPICE"}}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"HOSPICE"}, summary.CareTypes)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Orphaned)
}

func TestEngine_NoDatasetIsSetupError(t *testing.T) {
	h := newHarness(t)
	ptest.SeedDataset(t, h.conn, "202504", "pending")

	summary, err := h.engine(t, Config{}).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, errors.IsSetupError(err))

	_, err = h.engine(t, Config{DatasetID: "202504"}).Run(context.Background())
	assert.True(t, errors.IsSetupError(err))

	runs, err := h.runs.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// faultyDatasets injects failures into owner lookups.
type faultyDatasets struct {
	*storage.DatasetStore
	owners func(ctx context.Context, rawNames []string) error
}

func (f *faultyDatasets) Owners(ctx context.Context, datasetID, careType string, rawNames []string) ([]ownership.OwnershipRecord, error) {
	if err := f.owners(ctx, rawNames); err != nil {
		return nil, err
	}
	return f.DatasetStore.Owners(ctx, datasetID, careType, rawNames)
}

func TestEngine_RowErrorSkipsAndKeepsRow(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	ptest.SeedFacilities(t, h.conn, testDataset, homeHealth,
		ptest.Facility{CCN: "037009", Subsidiary: "Yuma Home Health LLC", State: "AZ"})
	// last run's row for the subsidiary that will fail
	seedStale(t, h, "YUMA HOME HEALTH")
	ctx := context.Background()

	datasets := &faultyDatasets{
		DatasetStore: h.datasets,
		owners: func(_ context.Context, rawNames []string) error {
			if rawNames[0] == "Yuma Home Health LLC" {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	e := h.engineWith(t, Config{Workers: 4}, datasets)
	summary, err := e.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, ownership.RunCompletedWithErrors, summary.Status)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Assigned)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Swept)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, StageFetchOwners, summary.Errors[0].Stage)
	assert.Equal(t, "YUMA HOME HEALTH", summary.Errors[0].Key.Name)

	sub, err := h.subsidiaries.Get(ctx, ownership.SubsidiaryKey{Name: "YUMA HOME HEALTH", CareType: homeHealth})
	require.NoError(t, err)
	assert.Equal(t, "OLD PARENT", *sub.CanonicalParent)

	run, err := h.runs.Get(ctx, e.RunID())
	require.NoError(t, err)
	assert.Equal(t, ownership.RunCompletedWithErrors, run.Status)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "connection reset")
}

func TestEngine_MaxLoggedErrors(t *testing.T) {
	h := newHarness(t)
	ptest.SeedDataset(t, h.conn, testDataset, "completed")
	ptest.SeedFacilities(t, h.conn, testDataset, homeHealth,
		ptest.Facility{CCN: "1", Subsidiary: "Alpha Care LLC"},
		ptest.Facility{CCN: "2", Subsidiary: "Beta Care LLC"},
		ptest.Facility{CCN: "3", Subsidiary: "Gamma Care LLC"},
	)

	datasets := &faultyDatasets{
		DatasetStore: h.datasets,
		owners: func(context.Context, []string) error {
			return errors.New("unavailable")
		},
	}
	summary, err := h.engineWith(t, Config{MaxLoggedErrors: 2}, datasets).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Skipped)
	assert.Len(t, summary.Errors, 2)
}

func TestEngine_PanicIsRowError(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)

	datasets := &faultyDatasets{
		DatasetStore: h.datasets,
		owners: func(context.Context, []string) error {
			panic("nil map")
		},
	}
	summary, err := h.engineWith(t, Config{}, datasets).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0].Error(), "panic: nil map")
}

func TestEngine_RowTimeout(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)

	datasets := &faultyDatasets{
		DatasetStore: h.datasets,
		owners: func(ctx context.Context, _ []string) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	cfg := Config{RowTimeout: 20 * time.Millisecond}
	summary, err := h.engineWith(t, cfg, datasets).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.ErrorIs(t, summary.Errors[0], context.DeadlineExceeded)
}

func TestEngine_CancellationStopsDispatch(t *testing.T) {
	h := newHarness(t)
	ptest.SeedDataset(t, h.conn, testDataset, "completed")
	ptest.SeedFacilities(t, h.conn, testDataset, homeHealth,
		ptest.Facility{CCN: "1", Subsidiary: "Alpha Care LLC"},
		ptest.Facility{CCN: "2", Subsidiary: "Beta Care LLC"},
		ptest.Facility{CCN: "3", Subsidiary: "Gamma Care LLC"},
		ptest.Facility{CCN: "4", Subsidiary: "Delta Care LLC"},
	)
	seedStale(t, h, "DISSOLVED HOME HEALTH")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	datasets := &faultyDatasets{
		DatasetStore: h.datasets,
		owners: func(workCtx context.Context, _ []string) error {
			once.Do(cancel)
			// in-flight work is not cancelled
			return workCtx.Err()
		},
	}
	e := h.engineWith(t, Config{Workers: 1}, datasets)
	summary, err := e.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, ownership.RunCancelled, summary.Status)
	assert.Less(t, summary.Processed, 4)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Swept)

	_, err = h.subsidiaries.Get(context.Background(), ownership.SubsidiaryKey{Name: "DISSOLVED HOME HEALTH", CareType: homeHealth})
	assert.NoError(t, err)

	run, err := h.runs.Get(context.Background(), e.RunID())
	require.NoError(t, err)
	assert.Equal(t, ownership.RunCancelled, run.Status)
}

func TestEngine_PreservePolicyCountsDrift(t *testing.T) {
	h := newHarness(t)
	h.seedPennant(t)
	h.variants = storage.NewVariantStore(h.conn, db.SQLite, storage.PolicyPreserve)
	ctx := context.Background()

	_, err := h.variants.RecordVariant(ctx, "Ensign Group", "THE PENNANT GROUP, INC.", ownership.ContextParent)
	require.NoError(t, err)

	summary, err := h.engine(t, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.VariantDrift)
	assert.Equal(t, 3, summary.VariantsRecorded)

	v, err := h.variants.Lookup(ctx, "THE PENNANT GROUP, INC.", ownership.ContextParent)
	require.NoError(t, err)
	assert.Equal(t, "ENSIGN GROUP", v.CanonicalName)
}

func TestEngine_ClampsWorkers(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.engine(t, Config{Workers: 0}).cfg.Workers)
	assert.Equal(t, 16, h.engine(t, Config{Workers: 64}).cfg.Workers)
}
