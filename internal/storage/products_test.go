package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

func TestSaveProducts_InsertAndUpdate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	p := testProduct(10, "Durex Extra Safe", "Durex")
	p.Description = model.StringPtr("12 condoms")
	seedProducts(t, store, p)

	got, err := store.GetProduct(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Durex Extra Safe", got.Name)
	assert.Equal(t, "Durex", *got.Brand)
	assert.Equal(t, "12 condoms", *got.Description)
	assert.True(t, decimal.RequireFromString("12.5").Equal(got.Price))
	assert.Equal(t, 3, got.StockQuantity)

	require.NoError(t, store.UpdatePlacement(ctx, 10, model.Placement{Category: "farmaci", Subcategory: "Mirëqenia seksuale"}))

	p.Name = "Durex Extra Safe 12"
	p.Price = decimal.RequireFromString("9.99")
	p.Description = nil
	seedProducts(t, store, p)

	got, err = store.GetProduct(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Durex Extra Safe 12", got.Name)
	assert.Equal(t, "9.99", got.Price.String())
	assert.Equal(t, "12 condoms", *got.Description, "blank fields keep stored values")
	assert.Equal(t, "farmaci / Mirëqenia seksuale", got.Placement().String())
}

func TestSaveProducts_AssignsIDs(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	products := []model.Product{testProduct(0, "First", ""), testProduct(0, "Second", "")}
	require.NoError(t, store.SaveProducts(context.Background(), products))
	assert.Positive(t, products[0].ID)
	assert.Greater(t, products[1].ID, products[0].ID)
}

func TestSaveProducts_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveProducts(ctx, nil), ErrNilParameter)
	assert.ErrorIs(t, store.SaveProducts(ctx, []model.Product{}), ErrEmptySlice)

	bad := testProduct(1, " ", "")
	assert.ErrorIs(t, store.SaveProducts(ctx, []model.Product{bad}), ErrInvalidProduct)

	bad = testProduct(1, "Negative", "")
	bad.Price = decimal.NewFromInt(-1)
	assert.ErrorIs(t, store.SaveProducts(ctx, []model.Product{bad}), ErrInvalidProduct)

	// Nothing from a rejected batch is written.
	n, err := store.CountProducts(ctx, service.ProductFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetProduct_NotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetProduct(context.Background(), 404)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetProductsByIDs_KeepsRequestOrder(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	seedProducts(t, store, testProduct(1, "A", ""), testProduct(2, "B", ""), testProduct(3, "C", ""))

	got, err := store.GetProductsByIDs(context.Background(), []int64{3, 99, 1, 3})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
}

func TestListProducts_Filters(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	face := testProduct(1, "Face Cream", "")
	face.Category = model.StringPtr("dermokozmetikë")
	face.Subcategory = model.StringPtr("Fytyre")
	body := testProduct(2, "Body Lotion", "")
	body.Category = model.StringPtr("dermokozmetikë")
	body.Subcategory = model.StringPtr("Trupi")
	loose := testProduct(3, "Loose Item", "")
	blank := testProduct(4, "Blank Category", "")
	seedProducts(t, store, face, body, loose, blank)
	require.NoError(t, store.ReplaceImages(ctx, 2, "/img/body.jpg"))

	tests := []struct {
		name   string
		filter service.ProductFilter
		want   []int64
	}{
		{name: "everything", filter: service.ProductFilter{Limit: 10}, want: []int64{1, 2, 3, 4}},
		{name: "limit", filter: service.ProductFilter{Limit: 2}, want: []int64{1, 2}},
		{name: "after id", filter: service.ProductFilter{Limit: 10, AfterID: 2}, want: []int64{3, 4}},
		{name: "category", filter: service.ProductFilter{Limit: 10, Category: "Dermokozmetikë"}, want: []int64{1, 2}},
		{
			name:   "subcategory",
			filter: service.ProductFilter{Limit: 10, Category: "dermokozmetikë", Subcategory: "trupi"},
			want:   []int64{2},
		},
		{name: "unclassified", filter: service.ProductFilter{Limit: 10, Unclassified: true}, want: []int64{3, 4}},
		{name: "missing image", filter: service.ProductFilter{Limit: 10, MissingPrimaryImage: true}, want: []int64{1, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListProducts(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]int64, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestListProducts_RequiresLimit(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.ListProducts(context.Background(), service.ProductFilter{})
	assert.ErrorIs(t, err, common.ErrLimitRequired)
}

func TestCountProducts(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	seedProducts(t, store, testProduct(1, "A", ""), testProduct(2, "B", ""))

	n, err := store.CountProducts(context.Background(), service.ProductFilter{Unclassified: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpdatePlacement(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	seedProducts(t, store, testProduct(1, "A", ""), testProduct(2, "B", ""))

	require.NoError(t, store.UpdatePlacement(ctx, 1, model.Placement{Category: "suplemente"}))

	one, err := store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "suplemente", *one.Category)
	assert.Nil(t, one.Subcategory)

	two, err := store.GetProduct(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, two.Category, "only the given product is touched")

	assert.ErrorIs(t, store.UpdatePlacement(ctx, 42, model.Placement{Category: "x"}), common.ErrNotFound)
}
