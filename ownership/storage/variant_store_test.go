package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremarket/parentry/db"
	"github.com/caremarket/parentry/errors"
	ptest "github.com/caremarket/parentry/internal/testing"
	"github.com/caremarket/parentry/ownership"
)

func TestVariantStore_RecordVariant(t *testing.T) {
	conn := ptest.CreateTestDB(t)
	store := NewVariantStore(conn, db.SQLite, PolicyOverwrite).ForRun("run_1")
	ctx := context.Background()

	res, err := store.RecordVariant(ctx, "The Pennant Group, Inc.", "THE PENNANT GROUP, INC.", ownership.ContextParent)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.False(t, res.Drifted)

	// Same mapping again is idempotent
	res, err = store.RecordVariant(ctx, "PENNANT GROUP", "THE PENNANT GROUP, INC.", ownership.ContextParent)
	require.NoError(t, err)
	assert.False(t, res.Drifted)
	assert.Equal(t, "PENNANT GROUP", res.Previous)

	v, err := store.Lookup(ctx, "THE PENNANT GROUP, INC.", ownership.ContextParent)
	require.NoError(t, err)
	assert.Equal(t, "PENNANT GROUP", v.CanonicalName, "canonical names are stored normalized")
	assert.Equal(t, "run_1", v.LastRunID)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVariantStore_SameVariantDifferentContexts(t *testing.T) {
	conn := ptest.CreateTestDB(t)
	store := NewVariantStore(conn, db.SQLite, PolicyOverwrite)
	ctx := context.Background()

	_, err := store.RecordVariant(ctx, "PENNANT GROUP", "Pennant Group Inc", ownership.ContextParent)
	require.NoError(t, err)
	_, err = store.RecordVariant(ctx, "PENNANT GROUP", "Pennant Group Inc", ownership.ContextInvestor)
	require.NoError(t, err)
	_, err = store.RecordVariant(ctx, "PENNANT GROUP", "THE PENNANT GROUP, INC.", ownership.ContextParent)
	require.NoError(t, err)

	variants, err := store.ListFor(ctx, "The Pennant Group")
	require.NoError(t, err)
	require.Len(t, variants, 3)
	assert.Equal(t, ownership.ContextInvestor, variants[0].SourceContext)
	assert.Equal(t, "Pennant Group Inc", variants[1].VariantName)
	assert.Equal(t, "THE PENNANT GROUP, INC.", variants[2].VariantName)
}

func TestVariantStore_OverwritePolicyReportsDrift(t *testing.T) {
	conn := ptest.CreateTestDB(t)
	store := NewVariantStore(conn, db.SQLite, PolicyOverwrite)
	ctx := context.Background()

	_, err := store.RecordVariant(ctx, "PENNANT", "Pennant Services", ownership.ContextParent)
	require.NoError(t, err)

	res, err := store.RecordVariant(ctx, "PENNANT GROUP", "Pennant Services", ownership.ContextParent)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.True(t, res.Drifted)
	assert.Equal(t, "PENNANT", res.Previous)

	v, err := store.Lookup(ctx, "Pennant Services", ownership.ContextParent)
	require.NoError(t, err)
	assert.Equal(t, "PENNANT GROUP", v.CanonicalName, "last write wins")
}

func TestVariantStore_PreservePolicyKeepsMapping(t *testing.T) {
	conn := ptest.CreateTestDB(t)
	store := NewVariantStore(conn, db.SQLite, PolicyPreserve)
	ctx := context.Background()

	_, err := store.RecordVariant(ctx, "PENNANT", "Pennant Services", ownership.ContextParent)
	require.NoError(t, err)

	res, err := store.RecordVariant(ctx, "PENNANT GROUP", "Pennant Services", ownership.ContextParent)
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.True(t, res.Drifted)

	v, err := store.Lookup(ctx, "Pennant Services", ownership.ContextParent)
	require.NoError(t, err)
	assert.Equal(t, "PENNANT", v.CanonicalName)
}

func TestVariantStore_RejectsIncompleteMapping(t *testing.T) {
	store := NewVariantStore(ptest.CreateTestDB(t), db.SQLite, "")
	ctx := context.Background()
	assert.Equal(t, PolicyOverwrite, store.Policy())

	_, err := store.RecordVariant(ctx, "", "Acme", ownership.ContextParent)
	assert.True(t, errors.IsInvalidRequestError(err))
	_, err = store.RecordVariant(ctx, "ACME", " ", ownership.ContextParent)
	assert.True(t, errors.IsInvalidRequestError(err))
	_, err = store.RecordVariant(ctx, "ACME", "Acme", "")
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = store.Lookup(ctx, "Acme", ownership.ContextParent)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestParseVariantPolicy(t *testing.T) {
	p, err := ParseVariantPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyOverwrite, p)

	p, err = ParseVariantPolicy("preserve")
	require.NoError(t, err)
	assert.Equal(t, PolicyPreserve, p)

	_, err = ParseVariantPolicy("merge")
	assert.Error(t, err)
}
