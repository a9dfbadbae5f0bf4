package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/catalog-janitor/internal/model"
	dbutil "github.com/Veraticus/catalog-janitor/internal/testutil"
	"github.com/Veraticus/catalog-janitor/internal/testutil/products"
)

func TestCollector_ObservesBatches(t *testing.T) {
	c := New(nil)
	c.ObserveItem(model.RunKindClassify, model.OutcomeApplied)
	c.ObserveItem(model.RunKindClassify, model.OutcomeApplied)
	c.ObserveItem(model.RunKindImages, model.OutcomeNoMatch)
	c.ObserveScore(90)
	c.ObserveBatch(model.RunKindClassify, false, 150*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(c.items.WithLabelValues("classify", "applied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.items.WithLabelValues("images", "skipped-no-match")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(c.scores))
	assert.Equal(t, 1, testutil.CollectAndCount(c.batches))

	require.NoError(t, c.Refresh(context.Background()), "refresh without a store is a no-op")
}

func TestCollector_Refresh(t *testing.T) {
	db := dbutil.SetupTestDBWithProducts(t,
		products.New("A").In("farmaci", ""),
		products.New("B").Images("/images/b.jpg"),
		products.New("C"),
	)
	c := New(db.Storage)
	require.NoError(t, c.Refresh(context.Background()))

	assert.InDelta(t, 3, testutil.ToFloat64(c.products), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.unclassified), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.unimaged), 0)
}

func TestWriteTextfile(t *testing.T) {
	c := New(nil)
	c.ObserveItem(model.RunKindUndo, model.OutcomeConflict)
	path := filepath.Join(t.TempDir(), "textfile", "catalog.prom")

	require.NoError(t, WriteTextfile(path, NewRegistry(c)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `catalog_batch_items_total{kind="undo",outcome="skipped-conflict"} 1`))
}
