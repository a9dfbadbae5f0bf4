package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/catalog-janitor/internal/model"
)

// GetCategories returns the active taxonomy in the order it was synced.
func (c *catalog) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := c.q.QueryxContext(ctx, `
		SELECT name, subcategory
		FROM categories
		WHERE is_active = 1
		ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	index := make(map[string]int)
	for rows.Next() {
		var name, sub string
		if err := rows.Scan(&name, &sub); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		key := strings.ToLower(name)
		i, ok := index[key]
		if !ok {
			i = len(categories)
			index[key] = i
			categories = append(categories, model.Category{Name: name})
		}
		if sub != "" {
			categories[i].Subcategories = append(categories[i].Subcategories, sub)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// SyncTaxonomy makes the categories table match a taxonomy. Pairs missing
// from the taxonomy are deactivated rather than deleted. It returns the
// number of pairs added, reactivated or deactivated.
func (c *catalog) SyncTaxonomy(ctx context.Context, taxonomy *model.Taxonomy) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if taxonomy == nil {
		return 0, fmt.Errorf("%w: taxonomy", ErrNilParameter)
	}

	var changed int
	err := c.atomic(ctx, func(q queryable) error {
		var active []struct {
			Name        string `db:"name"`
			Subcategory string `db:"subcategory"`
		}
		if err := sqlx.SelectContext(ctx, q, &active,
			`SELECT name, subcategory FROM categories WHERE is_active = 1`); err != nil {
			return fmt.Errorf("failed to read categories: %w", mapError(err))
		}
		previous := make(map[model.Placement]bool, len(active))
		for _, row := range active {
			previous[model.Placement{Category: row.Name, Subcategory: row.Subcategory}] = true
		}

		if _, err := q.ExecContext(ctx, `UPDATE categories SET is_active = 0`); err != nil {
			return fmt.Errorf("failed to reset categories: %w", mapError(err))
		}

		pairs := taxonomy.Pairs()
		for pos, pair := range pairs {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO categories (name, subcategory, position, is_active)
				VALUES (?, ?, ?, 1)
				ON CONFLICT(name, subcategory) DO UPDATE SET
					is_active = 1,
					position = excluded.position
			`, pair.Category, pair.Subcategory, pos); err != nil {
				return fmt.Errorf("failed to sync category %q: %w", pair.String(), mapError(err))
			}
			if previous[pair] {
				delete(previous, pair)
			} else {
				changed++
			}
		}
		changed += len(previous)
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("synced taxonomy", "changed", changed)
	return changed, nil
}
