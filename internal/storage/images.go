package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/catalog-janitor/internal/model"
)

// GetImages returns image rows grouped by product, primary first then by
// sort order.
func (c *catalog) GetImages(ctx context.Context, productIDs []int64) (map[int64][]model.ProductImage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	out := make(map[int64][]model.ProductImage, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, product_id, image_url, is_primary, sort_order
		FROM product_images
		WHERE product_id IN (?)
		ORDER BY product_id, is_primary DESC, sort_order, id
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build image query: %w", err)
	}

	var images []model.ProductImage
	if err := sqlx.SelectContext(ctx, c.q, &images, c.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get images: %w", mapError(err))
	}
	for _, img := range images {
		out[img.ProductID] = append(out[img.ProductID], img)
	}
	return out, nil
}

// GetImageOwners maps every stored image URL to the product it is attached
// to. When a URL appears on several products the oldest row wins.
func (c *catalog) GetImageOwners(ctx context.Context) (map[string]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := c.q.QueryxContext(ctx, `SELECT image_url, product_id FROM product_images ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query image owners: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	owners := make(map[string]int64)
	for rows.Next() {
		var url string
		var productID int64
		if err := rows.Scan(&url, &productID); err != nil {
			return nil, fmt.Errorf("failed to scan image owner: %w", err)
		}
		if _, seen := owners[url]; !seen {
			owners[url] = productID
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating image owners: %w", err)
	}
	return owners, nil
}

// ReplaceImages deletes every image row of a product and inserts imageURL
// as its only, primary image.
func (c *catalog) ReplaceImages(ctx context.Context, productID int64, imageURL string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(productID, "productID"); err != nil {
		return err
	}
	if err := validateImageURL(imageURL); err != nil {
		return err
	}

	return c.atomic(ctx, func(q queryable) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = ?`, productID); err != nil {
			return fmt.Errorf("failed to delete images of product %d: %w", productID, mapError(err))
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO product_images (product_id, image_url, is_primary, sort_order)
			VALUES (?, ?, 1, 0)
		`, productID, imageURL); err != nil {
			return fmt.Errorf("failed to insert image for product %d: %w", productID, mapError(err))
		}
		return nil
	})
}

// AddPrimaryImage attaches imageURL as the product's primary image, keeping
// any existing rows as secondary images.
func (c *catalog) AddPrimaryImage(ctx context.Context, productID int64, imageURL string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(productID, "productID"); err != nil {
		return err
	}
	if err := validateImageURL(imageURL); err != nil {
		return err
	}

	return c.atomic(ctx, func(q queryable) error {
		if _, err := q.ExecContext(ctx, `
			UPDATE product_images SET is_primary = 0, sort_order = sort_order + 1
			WHERE product_id = ?
		`, productID); err != nil {
			return fmt.Errorf("failed to demote images of product %d: %w", productID, mapError(err))
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO product_images (product_id, image_url, is_primary, sort_order)
			VALUES (?, ?, 1, 0)
		`, productID, imageURL); err != nil {
			return fmt.Errorf("failed to insert image for product %d: %w", productID, mapError(err))
		}
		return nil
	})
}

// RestoreImages puts a product's image rows back to a logged set, keeping
// the original row IDs.
func (c *catalog) RestoreImages(ctx context.Context, productID int64, images []model.ProductImage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(productID, "productID"); err != nil {
		return err
	}

	return c.atomic(ctx, func(q queryable) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = ?`, productID); err != nil {
			return fmt.Errorf("failed to delete images of product %d: %w", productID, mapError(err))
		}
		for _, img := range images {
			if err := validateImageURL(img.URL); err != nil {
				return err
			}
			var id any
			if img.ID > 0 {
				id = img.ID
			}
			if _, err := q.ExecContext(ctx, `
				INSERT INTO product_images (id, product_id, image_url, is_primary, sort_order)
				VALUES (?, ?, ?, ?, ?)
			`, id, productID, img.URL, img.IsPrimary, img.SortOrder); err != nil {
				return fmt.Errorf("failed to restore image for product %d: %w", productID, mapError(err))
			}
		}
		return nil
	})
}

// RepairPrimaryImages makes sure every product with images has exactly one
// primary image: products without one get their first image by sort order,
// products with several keep only the first. It returns the number of
// products changed.
func (c *catalog) RepairPrimaryImages(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var repaired int
	err := c.atomic(ctx, func(q queryable) error {
		var multi int
		if err := sqlx.GetContext(ctx, q, &multi, `
			SELECT COUNT(*) FROM (
				SELECT product_id FROM product_images
				GROUP BY product_id HAVING SUM(is_primary) > 1
			)
		`); err != nil {
			return fmt.Errorf("failed to count duplicate primaries: %w", mapError(err))
		}

		if _, err := q.ExecContext(ctx, `
			UPDATE product_images SET is_primary = 0
			WHERE is_primary = 1 AND id <> (
				SELECT i2.id FROM product_images i2
				WHERE i2.product_id = product_images.product_id AND i2.is_primary = 1
				ORDER BY i2.sort_order, i2.id LIMIT 1
			)
		`); err != nil {
			return fmt.Errorf("failed to clear duplicate primaries: %w", mapError(err))
		}

		res, err := q.ExecContext(ctx, `
			UPDATE product_images SET is_primary = 1
			WHERE id IN (
				SELECT (
					SELECT i2.id FROM product_images i2
					WHERE i2.product_id = i.product_id
					ORDER BY i2.sort_order, i2.id LIMIT 1
				)
				FROM product_images i
				GROUP BY i.product_id
				HAVING SUM(i.is_primary) = 0
			)
		`)
		if err != nil {
			return fmt.Errorf("failed to promote primaries: %w", mapError(err))
		}
		promoted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		repaired = multi + int(promoted)
		return nil
	})
	return repaired, err
}
