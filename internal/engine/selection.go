package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// Selection names the products a batch may touch. Either IDs or a scope is
// used, never both, and the result is always capped by Limit.
type Selection struct {
	// Category and Subcategory restrict the batch to products currently
	// placed there.
	Category    string
	Subcategory string
	IDs         []int64
	// AfterID pages through a scope by skipping IDs up to and including it.
	AfterID int64
	// Limit caps the batch. Zero uses the configured default.
	Limit int
	// Unclassified restricts the batch to products without a category.
	Unclassified bool
}

func (s Selection) hasScope() bool {
	return s.Category != "" || s.Subcategory != "" || s.Unclassified || s.AfterID > 0
}

// String describes the selection for run records.
func (s Selection) String() string {
	var parts []string
	if len(s.IDs) > 0 {
		ids := make([]string, 0, len(s.IDs))
		for _, id := range s.IDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		parts = append(parts, "ids="+strings.Join(ids, ","))
	}
	if s.Category != "" {
		parts = append(parts, "category="+s.Category)
	}
	if s.Subcategory != "" {
		parts = append(parts, "subcategory="+s.Subcategory)
	}
	if s.Unclassified {
		parts = append(parts, "unclassified")
	}
	if s.AfterID > 0 {
		parts = append(parts, fmt.Sprintf("after=%d", s.AfterID))
	}
	parts = append(parts, fmt.Sprintf("limit=%d", s.Limit))
	return strings.Join(parts, " ")
}

// resolve fills the limit and checks the selection is bounded.
func (s Selection) resolve(cfg Config) (Selection, error) {
	if len(s.IDs) > 0 && s.hasScope() {
		return s, fmt.Errorf("%w: give product IDs or a scope, not both", common.ErrInvalidConfig)
	}
	if s.Subcategory != "" && s.Category == "" {
		return s, fmt.Errorf("%w: a subcategory scope needs a category", common.ErrInvalidConfig)
	}
	if s.Limit <= 0 {
		s.Limit = cfg.DefaultLimit
	}
	if s.Limit <= 0 {
		return s, common.ErrLimitRequired
	}
	if cfg.MaxLimit > 0 && s.Limit > cfg.MaxLimit {
		return s, fmt.Errorf("%w: limit %d is above the maximum of %d", common.ErrLimitExceeded, s.Limit, cfg.MaxLimit)
	}
	if len(s.IDs) > s.Limit {
		return s, fmt.Errorf("%w: %d product IDs given with a limit of %d", common.ErrLimitExceeded, len(s.IDs), s.Limit)
	}
	for _, id := range s.IDs {
		if id <= 0 {
			return s, fmt.Errorf("%w: invalid product ID %d", common.ErrInvalidConfig, id)
		}
	}
	return s, nil
}

// load fetches the selected products. IDs that do not exist come back as
// skipped-invalid results.
func (s Selection) load(ctx context.Context, c service.Catalog, filter service.ProductFilter) ([]model.Product, []model.ItemResult, error) {
	if len(s.IDs) == 0 {
		filter.Category = s.Category
		filter.Subcategory = s.Subcategory
		filter.Unclassified = filter.Unclassified || s.Unclassified
		filter.AfterID = s.AfterID
		filter.Limit = s.Limit
		products, err := c.ListProducts(ctx, filter)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to select products: %w", err)
		}
		return products, nil, nil
	}

	ids := dedupe(s.IDs)
	products, err := c.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load products: %w", err)
	}

	found := make(map[int64]bool, len(products))
	for _, p := range products {
		found[p.ID] = true
	}
	var missing []model.ItemResult
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, model.ItemResult{
				ProductID: id,
				Outcome:   model.OutcomeInvalid,
				Error:     "product not found",
			})
		}
	}
	return products, missing, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
