package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremarket/parentry/db"
	"github.com/caremarket/parentry/errors"
	ptest "github.com/caremarket/parentry/internal/testing"
	"github.com/caremarket/parentry/ownership"
)

func TestRunStore_Lifecycle(t *testing.T) {
	conn := ptest.CreateTestDB(t)
	store := NewRunStore(conn, db.SQLite)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	assert.True(t, errors.IsNotFoundError(err))

	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	run := ownership.Run{ID: "run_20250301_100000_abcd1234", DatasetID: "202501", CareType: "HOME_HEALTH", StartedAt: started}
	require.NoError(t, store.Start(ctx, run))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ownership.RunRunning, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, started.Equal(got.StartedAt))

	run.Status = ownership.RunCompletedWithErrors
	run.Counts = ownership.RunCounts{Processed: 10, Assigned: 7, Orphaned: 2, Skipped: 1, UniqueParents: 5, DistinctStates: 3, VariantsRecorded: 20, Swept: 4}
	run.Errors = []string{"FETCH_OWNERS HOME_HEALTH/BROKEN: timeout"}
	require.NoError(t, store.Finish(ctx, run))

	got, err = store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ownership.RunCompletedWithErrors, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, run.Counts, got.Counts)
	assert.Equal(t, run.Errors, got.Errors)

	later := ownership.Run{ID: "run_20250302_100000_ffff0000", DatasetID: "202501", StartedAt: started.Add(24 * time.Hour), DryRun: true}
	require.NoError(t, store.Start(ctx, later))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, later.ID, latest.ID)
	assert.True(t, latest.DryRun)

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunStore_Errors(t *testing.T) {
	store := NewRunStore(ptest.CreateTestDB(t), db.SQLite)
	ctx := context.Background()

	assert.True(t, errors.IsInvalidRequestError(store.Start(ctx, ownership.Run{})))
	assert.True(t, errors.IsNotFoundError(store.Finish(ctx, ownership.Run{ID: "missing", Status: ownership.RunCompleted})))

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}
