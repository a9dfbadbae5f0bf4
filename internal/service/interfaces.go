// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/catalog-janitor/internal/model"
)

// ProductFilter defines filtering options for product queries. Limit is
// mandatory for scope queries so no caller can select the whole catalog by
// accident.
type ProductFilter struct {
	// Category and Subcategory restrict to products currently placed there.
	// An empty Subcategory matches any subcategory of Category.
	Category    string
	Subcategory string
	Limit       int
	AfterID     int64
	// Unclassified selects products with no category.
	Unclassified bool
	// MissingPrimaryImage selects products with no primary image row.
	MissingPrimaryImage bool
}

// Catalog lists the operations available both on the store and inside a
// batch transaction.
type Catalog interface {
	// Product operations
	SaveProducts(ctx context.Context, products []model.Product) error
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	CountProducts(ctx context.Context, filter ProductFilter) (int, error)
	UpdatePlacement(ctx context.Context, productID int64, placement model.Placement) error

	// Image operations
	GetImages(ctx context.Context, productIDs []int64) (map[int64][]model.ProductImage, error)
	GetImageOwners(ctx context.Context) (map[string]int64, error)
	ReplaceImages(ctx context.Context, productID int64, imageURL string) error
	AddPrimaryImage(ctx context.Context, productID int64, imageURL string) error
	RestoreImages(ctx context.Context, productID int64, images []model.ProductImage) error
	RepairPrimaryImages(ctx context.Context) (int, error)

	// Category operations
	GetCategories(ctx context.Context) ([]model.Category, error)
	SyncTaxonomy(ctx context.Context, taxonomy *model.Taxonomy) (int, error)

	// Run and mutation log operations
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	MarkRunReverted(ctx context.Context, id string, at time.Time) error
	AppendMutation(ctx context.Context, mutation *model.Mutation) error
	GetMutations(ctx context.Context, runID string) ([]model.Mutation, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	Catalog

	// Batch lock
	AcquireBatchLock(ctx context.Context, owner string) error
	ReleaseBatchLock(ctx context.Context, owner string) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction. Savepoints let a batch roll
// back a single item without losing the rest of the batch.
type Transaction interface {
	Catalog
	Savepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	Commit() error
	Rollback() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
