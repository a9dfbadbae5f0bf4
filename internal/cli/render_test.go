package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/catalog-janitor/internal/classify"
	"github.com/Veraticus/catalog-janitor/internal/engine"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/report"
)

func TestRenderReport(t *testing.T) {
	r := &engine.Report{
		RunID: "run-1",
		Kind:  model.RunKindClassify,
		Scope: "ids=1,2,3 limit=100",
		Counts: map[model.Outcome]int{
			model.OutcomeApplied: 1,
			model.OutcomeNoMatch: 2,
		},
		Offending: map[model.Outcome][]int64{
			model.OutcomeNoMatch: {2, 3},
		},
		Items: []model.ItemResult{
			{ProductID: 1, Outcome: model.OutcomeApplied, New: &model.Placement{Category: "farmaci"}, Rule: "condoms"},
			{ProductID: 2, Outcome: model.OutcomeNoMatch},
			{ProductID: 3, Outcome: model.OutcomeNoMatch},
		},
	}

	t.Run("summary", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderReport(&buf, r, false))

		out := buf.String()
		assert.Contains(t, out, "Batch Complete")
		assert.Contains(t, out, "run-1")
		assert.Contains(t, out, "skipped-no-match")
		assert.Contains(t, out, "2,3")
		assert.NotContains(t, out, "skipped-conflict")
		assert.NotContains(t, out, "condoms")
	})

	t.Run("verbose dry run", func(t *testing.T) {
		dry := *r
		dry.DryRun = true

		var buf bytes.Buffer
		require.NoError(t, RenderReport(&buf, &dry, true))

		out := buf.String()
		assert.Contains(t, out, "Dry Run")
		assert.Contains(t, out, "condoms")
		assert.Contains(t, out, "farmaci")
	})
}

func TestRenderRuns(t *testing.T) {
	finished := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderRuns(&buf, nil))
		assert.Contains(t, buf.String(), "No runs recorded.")
	})

	t.Run("statuses", func(t *testing.T) {
		runs := []model.Run{
			{ID: "a", Kind: model.RunKindClassify, StartedAt: finished, FinishedAt: &finished, Counts: map[model.Outcome]int{model.OutcomeApplied: 4}},
			{ID: "b", Kind: model.RunKindImages, StartedAt: finished, FinishedAt: &finished, RevertedAt: &finished},
			{ID: "c", Kind: model.RunKindImages, StartedAt: finished},
		}

		var buf bytes.Buffer
		require.NoError(t, RenderRuns(&buf, runs))

		out := buf.String()
		assert.Contains(t, out, "done")
		assert.Contains(t, out, "reverted")
		assert.Contains(t, out, "unfinished")
	})
}

func TestRenderRun_Mutations(t *testing.T) {
	run := &model.Run{
		ID:   "run-2",
		Kind: model.RunKindImages,
		Mutations: []model.Mutation{
			{
				ID:          1,
				ProductID:   7,
				Kind:        model.MutationImage,
				OldImages:   []model.ProductImage{{URL: "/images/old.jpg", IsPrimary: true}},
				NewImageURL: "/images/new.jpg",
				Reason:      `image "new.jpg" scored 90`,
			},
			{
				ID:           2,
				ProductID:    8,
				Kind:         model.MutationCategory,
				NewPlacement: &model.Placement{Category: "suplemente", Subcategory: "Omega 3"},
				Reason:       "rule omega",
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRun(&buf, run))

	out := buf.String()
	assert.Contains(t, out, "/images/old.jpg")
	assert.Contains(t, out, "/images/new.jpg")
	assert.Contains(t, out, "suplemente / Omega 3")
	assert.Contains(t, out, "rule omega")
}

func TestRenderListing(t *testing.T) {
	brand := "Durex"

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderListing(&buf, &report.Listing{Kind: report.Unimaged}))
		assert.Contains(t, buf.String(), "No unimaged products.")
	})

	t.Run("paged", func(t *testing.T) {
		l := &report.Listing{
			Kind:      report.Unclassified,
			Total:     5,
			NextAfter: 12,
			Products:  []model.Product{{ID: 12, Name: "Extra Safe", Brand: &brand}},
		}

		var buf bytes.Buffer
		require.NoError(t, RenderListing(&buf, l))

		out := buf.String()
		assert.Contains(t, out, "Extra Safe")
		assert.Contains(t, out, "Durex")
		assert.Contains(t, out, "1 of 5 unclassified products")
		assert.Contains(t, out, "--after 12")
	})
}

func TestRenderRulesAndTaxonomy(t *testing.T) {
	rs := classify.Default()

	var buf bytes.Buffer
	require.NoError(t, RenderRules(&buf, rs))
	assert.Contains(t, buf.String(), "sexual-wellness-brands")

	buf.Reset()
	require.NoError(t, RenderTaxonomy(&buf, rs.Taxonomy.Categories()))
	assert.Contains(t, buf.String(), classify.CategorySupplements)
	assert.Contains(t, buf.String(), "Omega 3")
}

func TestFormatIDs(t *testing.T) {
	ids := make([]int64, 25)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	assert.Equal(t, "1,2", formatIDs([]int64{1, 2}))
	assert.Contains(t, formatIDs(ids), "+5 more")
}

func TestProgress_LazyBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "Classifying")

	p.Finish()
	assert.Empty(t, buf.String())

	fn := p.Func()
	fn(0, 0)
	assert.Nil(t, p.bar)

	fn(1, 2)
	fn(2, 2)
	p.Finish()
	assert.NotNil(t, p.bar)
	assert.Contains(t, buf.String(), "Classifying")
}
