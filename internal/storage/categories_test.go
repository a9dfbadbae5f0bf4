package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/catalog-janitor/internal/model"
)

func mustTaxonomy(t *testing.T, cats ...model.Category) *model.Taxonomy {
	t.Helper()
	tax, err := model.NewTaxonomy(cats)
	require.NoError(t, err)
	return tax
}

func TestSyncTaxonomy(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := mustTaxonomy(t,
		model.Category{Name: "dermokozmetikë", Subcategories: []string{"Fytyre", "Trupi"}},
		model.Category{Name: "farmaci"},
	)
	changed, err := store.SyncTaxonomy(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 4, changed)

	changed, err = store.SyncTaxonomy(ctx, first)
	require.NoError(t, err)
	assert.Zero(t, changed, "syncing the same taxonomy is a no-op")

	cats, err := store.GetCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Categories(), cats)

	second := mustTaxonomy(t,
		model.Category{Name: "dermokozmetikë", Subcategories: []string{"Fytyre"}},
		model.Category{Name: "suplemente", Subcategories: []string{"Omega 3"}},
	)
	changed, err = store.SyncTaxonomy(ctx, second)
	require.NoError(t, err)
	// Trupi and farmaci deactivated, suplemente and Omega 3 added.
	assert.Equal(t, 4, changed)

	cats, err = store.GetCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Categories(), cats)
}

func TestSyncTaxonomy_Nil(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.SyncTaxonomy(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilParameter)
}
