// Package report lists products that still need cleanup.
package report

import (
	"context"
	"fmt"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// Kind names a report.
type Kind string

// Report kinds.
const (
	Unclassified Kind = "unclassified"
	Unimaged     Kind = "unimaged"
)

// DefaultLimit is the page size when none is given.
const DefaultLimit = 50

// Page selects a window of a report.
type Page struct {
	Category string
	Limit    int
	AfterID  int64
}

// Listing is one page of a report.
type Listing struct {
	Kind     Kind            `json:"kind"`
	Products []model.Product `json:"products"`
	Total    int             `json:"total"`
	// NextAfter is the cursor for the following page, zero on the last one.
	NextAfter int64 `json:"next_after,omitempty"`
}

// Build runs a report against the catalog.
func Build(ctx context.Context, c service.Catalog, kind Kind, page Page) (*Listing, error) {
	var filter service.ProductFilter
	switch kind {
	case Unclassified:
		filter.Unclassified = true
	case Unimaged:
		filter.MissingPrimaryImage = true
		filter.Category = page.Category
	default:
		return nil, fmt.Errorf("unknown report %q", kind)
	}
	if page.Limit <= 0 {
		page.Limit = DefaultLimit
	}

	total, err := c.CountProducts(ctx, filter)
	if err != nil {
		return nil, err
	}

	filter.Limit = page.Limit
	filter.AfterID = page.AfterID
	products, err := c.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}

	listing := &Listing{Kind: kind, Products: products, Total: total}
	if len(products) == page.Limit {
		listing.NextAfter = products[len(products)-1].ID
	}
	return listing, nil
}
