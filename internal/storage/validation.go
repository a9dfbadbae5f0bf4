// Package storage provides the data persistence layer for the catalog.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrEmptySlice      = errors.New("slice cannot be empty")
	ErrInvalidProduct  = errors.New("invalid product")
	ErrInvalidImage    = errors.New("invalid image")
	ErrInvalidRun      = errors.New("invalid run")
	ErrInvalidMutation = errors.New("invalid mutation")
	ErrInvalidName     = errors.New("invalid identifier")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validateID(id int64, paramName string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrNilParameter, paramName, id)
	}
	return nil
}

// validateFilter rejects unbounded product queries.
func validateFilter(filter service.ProductFilter) error {
	if filter.Limit <= 0 {
		return common.ErrLimitRequired
	}
	if filter.Subcategory != "" && filter.Category == "" {
		return fmt.Errorf("%w: subcategory filter requires a category", ErrEmptyString)
	}
	return nil
}

// validateProducts validates a slice of products.
func validateProducts(products []model.Product) error {
	if products == nil {
		return fmt.Errorf("%w: products", ErrNilParameter)
	}
	if len(products) == 0 {
		return fmt.Errorf("%w: products", ErrEmptySlice)
	}

	for i := range products {
		if err := validateProduct(&products[i]); err != nil {
			return fmt.Errorf("product at index %d: %w", i, err)
		}
	}
	return nil
}

// validateProduct validates a single product.
func validateProduct(p *model.Product) error {
	if p == nil {
		return fmt.Errorf("%w: product", ErrNilParameter)
	}
	if p.ID < 0 {
		return fmt.Errorf("%w: negative ID %d", ErrInvalidProduct, p.ID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: negative price", ErrInvalidProduct)
	}
	if p.StockQuantity < 0 {
		return fmt.Errorf("%w: negative stock quantity", ErrInvalidProduct)
	}
	if p.Category == nil && p.Subcategory != nil {
		return fmt.Errorf("%w: subcategory without category", ErrInvalidProduct)
	}
	return nil
}

func validateImageURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: missing image URL", ErrInvalidImage)
	}
	return nil
}

// validateRun validates a batch run record.
func validateRun(run *model.Run) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRun)
	}
	switch run.Kind {
	case model.RunKindClassify, model.RunKindImages, model.RunKindUndo:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRun, run.Kind)
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidRun)
	}
	return nil
}

// validateMutation validates a mutation log entry.
func validateMutation(m *model.Mutation) error {
	if m == nil {
		return fmt.Errorf("%w: mutation", ErrNilParameter)
	}
	if strings.TrimSpace(m.RunID) == "" {
		return fmt.Errorf("%w: missing run ID", ErrInvalidMutation)
	}
	if m.ProductID <= 0 {
		return fmt.Errorf("%w: missing product ID", ErrInvalidMutation)
	}
	switch m.Kind {
	case model.MutationCategory:
		if m.OldPlacement == nil || m.NewPlacement == nil {
			return fmt.Errorf("%w: category mutation needs old and new placement", ErrInvalidMutation)
		}
	case model.MutationImage:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMutation, m.Kind)
	}
	return nil
}
