// Package products provides test fixtures for catalog products. It offers a
// fluent API for seeding products and their images into a store.
//
// Example usage:
//
//	seeded := products.NewBuilder(t).
//		WithFixture(products.FixturePharmacy).
//		WithProduct(products.New("Vichy Mineral 89").Brand("Vichy")).
//		Build(ctx, store)
package products

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// Spec describes one product to seed.
type Spec struct {
	product model.Product
	images  []string
}

// New starts a product spec with a name and default price and stock.
func New(name string) *Spec {
	return &Spec{product: model.Product{
		Name:          name,
		Price:         decimal.RequireFromString("9.90"),
		StockQuantity: 10,
	}}
}

// ID pins the product ID.
func (s *Spec) ID(id int64) *Spec {
	s.product.ID = id
	return s
}

// Brand sets the brand.
func (s *Spec) Brand(brand string) *Spec {
	s.product.Brand = model.StringPtr(brand)
	return s
}

// Description sets the description.
func (s *Spec) Description(text string) *Spec {
	s.product.Description = model.StringPtr(text)
	return s
}

// In places the product in a category.
func (s *Spec) In(category, subcategory string) *Spec {
	s.product.Category = model.StringPtr(category)
	s.product.Subcategory = model.StringPtr(subcategory)
	return s
}

// Price sets the price from a decimal string.
func (s *Spec) Price(price string) *Spec {
	s.product.Price = decimal.RequireFromString(price)
	return s
}

// Images attaches image URLs. The first becomes the primary image.
func (s *Spec) Images(urls ...string) *Spec {
	s.images = append(s.images, urls...)
	return s
}

// Product returns the product the spec describes.
func (s *Spec) Product() model.Product {
	return s.product
}

// Builder seeds products into a store.
type Builder struct {
	t     *testing.T
	specs []*Spec
}

// NewBuilder creates a builder for the given test.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t}
}

// WithProduct adds a single product.
func (b *Builder) WithProduct(spec *Spec) *Builder {
	b.specs = append(b.specs, spec)
	return b
}

// WithProducts adds several products.
func (b *Builder) WithProducts(specs ...*Spec) *Builder {
	b.specs = append(b.specs, specs...)
	return b
}

// WithFixture adds every product of a fixture.
func (b *Builder) WithFixture(f Fixture) *Builder {
	return b.WithProducts(f.Specs()...)
}

// Build saves the products and their images, returning the saved products
// with their IDs in declaration order.
func (b *Builder) Build(ctx context.Context, store service.Storage) ([]model.Product, error) {
	b.t.Helper()

	out := make([]model.Product, 0, len(b.specs))
	for _, s := range b.specs {
		p := s.product
		batch := []model.Product{p}
		if err := store.SaveProducts(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to seed product %q: %w", p.Name, err)
		}
		p = batch[0]

		for i := len(s.images) - 1; i >= 0; i-- {
			if err := store.AddPrimaryImage(ctx, p.ID, s.images[i]); err != nil {
				return nil, fmt.Errorf("failed to seed image for %q: %w", p.Name, err)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// MustBuild is Build that fails the test on error.
func (b *Builder) MustBuild(ctx context.Context, store service.Storage) []model.Product {
	b.t.Helper()
	out, err := b.Build(ctx, store)
	if err != nil {
		b.t.Fatalf("failed to build products: %v", err)
	}
	return out
}
