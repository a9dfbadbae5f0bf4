// Package testutil provides test utilities for the catalog: isolated
// SQLite stores and seeded fixtures.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
	"github.com/Veraticus/catalog-janitor/internal/storage"
	"github.com/Veraticus/catalog-janitor/internal/testutil/products"
)

// TestDB is a migrated store living in the test's temp directory.
type TestDB struct {
	Storage  *storage.SQLiteStorage
	t        *testing.T
	Products []model.Product
	Path     string
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	CustomSetup func(context.Context, service.Storage) error
	Taxonomy    *model.Taxonomy
	Fixtures    []products.Fixture
	Products    []*products.Spec
}

// SetupTestDB creates a migrated, empty store that is closed when the test
// ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithProducts creates a store seeded with the given products.
func SetupTestDBWithProducts(t *testing.T, specs ...*products.Spec) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Products: specs})
}

// SetupTestDBWithOptions creates a store with custom seeding.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if opts.Taxonomy != nil {
		if _, err := store.SyncTaxonomy(ctx, opts.Taxonomy); err != nil {
			t.Fatalf("failed to sync taxonomy: %v", err)
		}
	}

	builder := products.NewBuilder(t)
	for _, f := range opts.Fixtures {
		builder.WithFixture(f)
	}
	builder.WithProducts(opts.Products...)
	seeded := builder.MustBuild(ctx, store)

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage:  store,
		Products: seeded,
		Path:     path,
		t:        t,
	}
}

// MustGetProduct reloads a product or fails the test.
func (db *TestDB) MustGetProduct(id int64) *model.Product {
	db.t.Helper()
	p, err := db.Storage.GetProduct(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get product %d: %v", id, err)
	}
	return p
}

// MustGetImages returns a product's images or fails the test.
func (db *TestDB) MustGetImages(id int64) []model.ProductImage {
	db.t.Helper()
	images, err := db.Storage.GetImages(context.Background(), []int64{id})
	if err != nil {
		db.t.Fatalf("failed to get images of product %d: %v", id, err)
	}
	return images[id]
}

// IDs returns the IDs of the seeded products.
func (db *TestDB) IDs() []int64 {
	ids := make([]int64, len(db.Products))
	for i, p := range db.Products {
		ids[i] = p.ID
	}
	return ids
}

// WithTransaction executes fn within a transaction that is always rolled
// back.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	tx, err := db.Storage.BeginTx(context.Background())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// InsertRawProduct writes a product row directly, bypassing the store's
// validation, and returns its ID. It seeds rows the importer would
// reject, such as blank names.
func (db *TestDB) InsertRawProduct(name string) int64 {
	db.t.Helper()
	conn, err := sqlx.Connect("sqlite3", db.Path+"?_busy_timeout=5000")
	if err != nil {
		db.t.Fatalf("failed to open raw connection: %v", err)
	}
	defer func() { _ = conn.Close() }()

	res, err := conn.Exec(`INSERT INTO products (name) VALUES (?)`, name)
	if err != nil {
		db.t.Fatalf("failed to insert raw product %q: %v", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		db.t.Fatalf("failed to read raw product id: %v", err)
	}
	return id
}
