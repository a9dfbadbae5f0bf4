package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// DefaultChunkSize is how many products are written per transaction.
const DefaultChunkSize = 500

// Summary reports an import.
type Summary struct {
	Skipped  []Skip `json:"skipped,omitempty"`
	Total    int    `json:"total"`
	Imported int    `json:"imported"`
	Images   int    `json:"images"`
}

// Importer writes parsed records to the store.
type Importer struct {
	store     service.Storage
	chunkSize int
}

// New creates an importer.
func New(store service.Storage) *Importer {
	return &Importer{store: store, chunkSize: DefaultChunkSize}
}

// Import saves every record of res. Records without an ID are inserted as
// new products. A record's image becomes the product's primary image. The
// store's batch lock is held for the whole import.
func (im *Importer) Import(ctx context.Context, res *Result) (*Summary, error) {
	summary := &Summary{Total: res.Total, Skipped: res.Skipped}
	if len(res.Records) == 0 {
		return summary, nil
	}

	owner := "import-" + uuid.NewString()
	if err := im.store.AcquireBatchLock(ctx, owner); err != nil {
		return nil, err
	}
	defer func() {
		if err := im.store.ReleaseBatchLock(context.WithoutCancel(ctx), owner); err != nil {
			slog.Error("Failed to release batch lock", "error", err)
		}
	}()

	for start := 0; start < len(res.Records); start += im.chunkSize {
		end := min(start+im.chunkSize, len(res.Records))
		images, err := im.saveChunk(ctx, res.Records[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to import records %d-%d: %w", start+1, end, err)
		}
		summary.Imported += end - start
		summary.Images += images
	}

	slog.Info("Imported products",
		"imported", summary.Imported,
		"images", summary.Images,
		"skipped", len(summary.Skipped))
	return summary, nil
}

func (im *Importer) saveChunk(ctx context.Context, records []Record) (int, error) {
	tx, err := im.store.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	products := make([]model.Product, len(records))
	for i, r := range records {
		products[i] = r.Product
	}
	if err := tx.SaveProducts(ctx, products); err != nil {
		return 0, err
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	existing, err := tx.GetImages(ctx, ids)
	if err != nil {
		return 0, err
	}

	images := 0
	for i, r := range records {
		if r.ImageURL == "" || hasImage(existing[products[i].ID], r.ImageURL) {
			continue
		}
		if err := tx.AddPrimaryImage(ctx, products[i].ID, r.ImageURL); err != nil {
			return 0, fmt.Errorf("line %d: %w", r.Line, err)
		}
		images++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return images, nil
}

func hasImage(images []model.ProductImage, url string) bool {
	for _, img := range images {
		if img.URL == url {
			return true
		}
	}
	return false
}
