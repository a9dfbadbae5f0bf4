package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
)

func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func testProduct(id int64, name, brand string) model.Product {
	return model.Product{
		ID:            id,
		Name:          name,
		Brand:         model.StringPtr(brand),
		Price:         decimal.RequireFromString("12.50"),
		StockQuantity: 3,
	}
}

func seedProducts(t *testing.T, store *SQLiteStorage, products ...model.Product) {
	t.Helper()
	require.NoError(t, store.SaveProducts(context.Background(), products))
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	seedProducts(t, store, testProduct(1, "Vichy Mineral 89", "Vichy"))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpdatePlacement(ctx, 1, model.Placement{Category: "dermokozmetikë", Subcategory: "Fytyre"}))
	require.NoError(t, tx.Rollback())

	p, err := store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, p.Category)

	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpdatePlacement(ctx, 1, model.Placement{Category: "dermokozmetikë", Subcategory: "Fytyre"}))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	p, err = store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "dermokozmetikë / Fytyre", p.Placement().String())
}

func TestTransaction_Savepoints(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	seedProducts(t, store,
		testProduct(1, "Item One", ""),
		testProduct(2, "Item Two", ""),
	)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	require.NoError(t, tx.Savepoint(ctx, "item_1"))
	require.NoError(t, tx.UpdatePlacement(ctx, 1, model.Placement{Category: "farmaci"}))
	require.NoError(t, tx.ReleaseSavepoint(ctx, "item_1"))

	require.NoError(t, tx.Savepoint(ctx, "item_2"))
	require.NoError(t, tx.UpdatePlacement(ctx, 2, model.Placement{Category: "farmaci"}))
	require.NoError(t, tx.RollbackToSavepoint(ctx, "item_2"))

	require.NoError(t, tx.Commit())

	one, err := store.GetProduct(ctx, 1)
	require.NoError(t, err)
	two, err := store.GetProduct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "farmaci", *one.Category)
	assert.Nil(t, two.Category)
}

func TestTransaction_SavepointRejectsBadNames(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	assert.ErrorIs(t, tx.Savepoint(ctx, "x; DROP TABLE products"), ErrInvalidName)
	assert.ErrorIs(t, tx.Savepoint(ctx, "1abc"), ErrInvalidName)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		name string
		busy bool
	}{
		{name: "nil", err: nil},
		{name: "busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, busy: true},
		{name: "locked", err: sqlite3.Error{Code: sqlite3.ErrLocked}, busy: true},
		{name: "wrapped busy", err: fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), busy: true},
		{name: "lock message", err: errors.New("database is locked"), busy: true},
		{name: "constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}},
		{name: "plain", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.busy, errors.Is(got, common.ErrStoreBusy))
			assert.Equal(t, tt.busy, common.IsRetryable(got))
		})
	}
}
