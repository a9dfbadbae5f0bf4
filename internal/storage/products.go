package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// catalog implements service.Catalog on top of either the database handle
// or an open transaction.
type catalog struct {
	q queryable
	// atomic groups statements that must commit together.
	atomic func(ctx context.Context, fn func(queryable) error) error
}

const productColumns = `p.id, p.name, p.brand, p.category, p.subcategory, p.description, p.price, p.stock_quantity`

// SaveProducts inserts products or updates them by ID. A zero ID lets the
// store assign one. Blank optional fields in an update keep their stored
// values.
func (c *catalog) SaveProducts(ctx context.Context, products []model.Product) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProducts(products); err != nil {
		return err
	}

	return c.atomic(ctx, func(q queryable) error {
		for i := range products {
			p := &products[i]
			if p.ID == 0 {
				res, err := sqlx.NamedExecContext(ctx, q, `
					INSERT INTO products (name, brand, category, subcategory, description, price, stock_quantity)
					VALUES (:name, :brand, :category, :subcategory, :description, :price, :stock_quantity)
				`, p)
				if err != nil {
					return fmt.Errorf("failed to insert product %q: %w", p.Name, mapError(err))
				}
				id, err := res.LastInsertId()
				if err != nil {
					return fmt.Errorf("failed to read product ID: %w", err)
				}
				p.ID = id
				continue
			}

			if _, err := sqlx.NamedExecContext(ctx, q, `
				INSERT INTO products (id, name, brand, category, subcategory, description, price, stock_quantity)
				VALUES (:id, :name, :brand, :category, :subcategory, :description, :price, :stock_quantity)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					brand = COALESCE(excluded.brand, products.brand),
					category = COALESCE(excluded.category, products.category),
					subcategory = CASE WHEN excluded.category IS NULL
						THEN products.subcategory ELSE excluded.subcategory END,
					description = COALESCE(excluded.description, products.description),
					price = excluded.price,
					stock_quantity = excluded.stock_quantity,
					updated_at = CURRENT_TIMESTAMP
			`, p); err != nil {
				return fmt.Errorf("failed to save product %d: %w", p.ID, mapError(err))
			}
		}
		return nil
	})
}

// GetProduct retrieves one product.
func (c *catalog) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	var p model.Product
	err := sqlx.GetContext(ctx, c.q, &p, `SELECT `+productColumns+` FROM products p WHERE p.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, mapError(err))
	}
	return &p, nil
}

// GetProductsByIDs returns the products that exist among ids, in the order
// the IDs were given. Unknown IDs are left out.
func (c *catalog) GetProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products p WHERE p.id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build product query: %w", err)
	}

	var found []model.Product
	if err := sqlx.SelectContext(ctx, c.q, &found, c.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get products: %w", mapError(err))
	}

	byID := make(map[int64]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]model.Product, 0, len(found))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && !seen[id] {
			out = append(out, p)
			seen[id] = true
		}
	}
	return out, nil
}

// ListProducts returns products matching a filter in ID order.
func (c *catalog) ListProducts(ctx context.Context, filter service.ProductFilter) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	where, args := filterClause(filter)
	query := `SELECT ` + productColumns + ` FROM products p` + where + ` ORDER BY p.id LIMIT ?`
	args = append(args, filter.Limit)

	products := []model.Product{}
	if err := sqlx.SelectContext(ctx, c.q, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", mapError(err))
	}
	return products, nil
}

// CountProducts counts products matching a filter. The limit is ignored.
func (c *catalog) CountProducts(ctx context.Context, filter service.ProductFilter) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	where, args := filterClause(filter)
	var count int
	if err := sqlx.GetContext(ctx, c.q, &count, `SELECT COUNT(*) FROM products p`+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", mapError(err))
	}
	return count, nil
}

func filterClause(filter service.ProductFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.AfterID > 0 {
		conds = append(conds, "p.id > ?")
		args = append(args, filter.AfterID)
	}
	if filter.Category != "" {
		conds = append(conds, "p.category = ? COLLATE NOCASE")
		args = append(args, filter.Category)
	}
	if filter.Subcategory != "" {
		conds = append(conds, "p.subcategory = ? COLLATE NOCASE")
		args = append(args, filter.Subcategory)
	}
	if filter.Unclassified {
		conds = append(conds, "(p.category IS NULL OR TRIM(p.category) = '')")
	}
	if filter.MissingPrimaryImage {
		conds = append(conds, `NOT EXISTS (
			SELECT 1 FROM product_images i WHERE i.product_id = p.id AND i.is_primary = 1
		)`)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// UpdatePlacement sets a product's category and subcategory. An empty
// subcategory is stored as NULL.
func (c *catalog) UpdatePlacement(ctx context.Context, productID int64, placement model.Placement) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(productID, "productID"); err != nil {
		return err
	}

	res, err := c.q.ExecContext(ctx, `
		UPDATE products
		SET category = ?, subcategory = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, model.StringPtr(placement.Category), model.StringPtr(placement.Subcategory), productID)
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", productID, mapError(err))
	}
	return requireRow(res, fmt.Sprintf("product %d", productID))
}

func requireRow(res sql.Result, what string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return nil
}
