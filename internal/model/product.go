// Package model defines the core data structures for the catalog application.
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// UnknownBrand is the placeholder importers write when a product has no brand.
const UnknownBrand = "Unknown"

// Product represents one sellable item in the catalog.
type Product struct {
	Brand         *string         `db:"brand" json:"brand,omitempty"`
	Category      *string         `db:"category" json:"category,omitempty"`
	Subcategory   *string         `db:"subcategory" json:"subcategory,omitempty"`
	Description   *string         `db:"description" json:"description,omitempty"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Name          string          `db:"name" json:"name"`
	ID            int64           `db:"id" json:"id"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
}

// BrandName returns the product brand, or an empty string when the brand is
// missing or the importer placeholder.
func (p Product) BrandName() string {
	if p.Brand == nil {
		return ""
	}
	b := strings.TrimSpace(*p.Brand)
	if strings.EqualFold(b, UnknownBrand) {
		return ""
	}
	return b
}

// Placement returns the product's current category pair.
func (p Product) Placement() Placement {
	return Placement{
		Category:    deref(p.Category),
		Subcategory: deref(p.Subcategory),
	}
}

// SearchText joins the fields the classifier looks at.
func (p Product) SearchText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Name, p.BrandName(), deref(p.Description)} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// ProductImage represents one image row attached to a product.
type ProductImage struct {
	URL       string `db:"image_url" json:"image_url"`
	ID        int64  `db:"id" json:"id,omitempty"`
	ProductID int64  `db:"product_id" json:"product_id"`
	SortOrder int    `db:"sort_order" json:"sort_order"`
	IsPrimary bool   `db:"is_primary" json:"is_primary"`
}

// PrimaryImage returns the primary image from a set, if any.
func PrimaryImage(images []ProductImage) *ProductImage {
	for i := range images {
		if images[i].IsPrimary {
			return &images[i]
		}
	}
	return nil
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
