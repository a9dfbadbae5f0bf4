package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
)

func newTestRun(id string, kind model.RunKind, started time.Time) *model.Run {
	return &model.Run{ID: id, Kind: kind, Scope: "ids=1,2", StartedAt: started}
}

func TestRuns_Lifecycle(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run := newTestRun("run-1", model.RunKindClassify, started)
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, got.FinishedAt)
	assert.Empty(t, got.Counts)
	assert.True(t, started.Equal(got.StartedAt))

	run.Counts = map[model.Outcome]int{model.OutcomeApplied: 2, model.OutcomeNoMatch: 1}
	require.NoError(t, store.FinishRun(ctx, run))

	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 2, got.Counts[model.OutcomeApplied])
	assert.Equal(t, 1, got.Counts[model.OutcomeNoMatch])
	assert.Equal(t, model.RunKindClassify, got.Kind)
	assert.Equal(t, "ids=1,2", got.Scope)

	require.NoError(t, store.MarkRunReverted(ctx, "run-1", started.Add(time.Hour)))
	assert.ErrorIs(t, store.MarkRunReverted(ctx, "run-1", started.Add(2*time.Hour)), common.ErrAlreadyReverted)

	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got.RevertedAt)
}

func TestRuns_NotFoundAndValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, store.CreateRun(ctx, &model.Run{Kind: model.RunKindClassify, StartedAt: time.Now()}), ErrInvalidRun)
	assert.ErrorIs(t, store.CreateRun(ctx, &model.Run{ID: "x", Kind: "bogus", StartedAt: time.Now()}), ErrInvalidRun)
	assert.ErrorIs(t, store.FinishRun(ctx, newTestRun("missing", model.RunKindImages, time.Now())), common.ErrNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateRun(ctx, newTestRun(id, model.RunKindImages, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	_, err = store.ListRuns(ctx, 0)
	assert.ErrorIs(t, err, common.ErrLimitRequired)
}

func TestMutations_RoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	seedProducts(t, store, testProduct(7, "Durex Extra Safe", "Durex"))
	require.NoError(t, store.CreateRun(ctx, newTestRun("run-1", model.RunKindClassify, time.Now())))

	category := &model.Mutation{
		RunID:        "run-1",
		ProductID:    7,
		Kind:         model.MutationCategory,
		OldPlacement: &model.Placement{},
		NewPlacement: &model.Placement{Category: "dermokozmetikë", Subcategory: "Mirëqenia seksuale"},
		Reason:       "rule sexual-wellness-brands matched brand durex",
	}
	image := &model.Mutation{
		RunID:       "run-1",
		ProductID:   7,
		Kind:        model.MutationImage,
		OldImages:   []model.ProductImage{{ID: 3, ProductID: 7, URL: "/img/old.jpg", IsPrimary: true}},
		NewImageURL: "/img/durex-extra-safe.jpg",
		Reason:      "basename contains name",
		Score:       90,
	}
	require.NoError(t, store.AppendMutation(ctx, category))
	require.NoError(t, store.AppendMutation(ctx, image))
	assert.Positive(t, category.ID)
	assert.Greater(t, image.ID, category.ID)

	got, err := store.GetMutations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.MutationCategory, got[0].Kind)
	require.NotNil(t, got[0].OldPlacement)
	assert.True(t, got[0].OldPlacement.IsZero())
	assert.Equal(t, "Mirëqenia seksuale", got[0].NewPlacement.Subcategory)
	assert.Nil(t, got[0].OldImages)

	assert.Equal(t, model.MutationImage, got[1].Kind)
	assert.Nil(t, got[1].OldPlacement)
	assert.Equal(t, image.OldImages, got[1].OldImages)
	assert.Equal(t, "/img/durex-extra-safe.jpg", got[1].NewImageURL)
	assert.Equal(t, 90, got[1].Score)

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, run.Mutations, 2)
}

func TestAppendMutation_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		m    *model.Mutation
		name string
	}{
		{name: "nil", m: nil},
		{name: "missing run", m: &model.Mutation{ProductID: 1, Kind: model.MutationImage}},
		{name: "missing product", m: &model.Mutation{RunID: "r", Kind: model.MutationImage}},
		{name: "category without placements", m: &model.Mutation{RunID: "r", ProductID: 1, Kind: model.MutationCategory}},
		{name: "unknown kind", m: &model.Mutation{RunID: "r", ProductID: 1, Kind: "price"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.AppendMutation(ctx, tt.m))
		})
	}
}
