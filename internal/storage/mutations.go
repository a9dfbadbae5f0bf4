package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/catalog-janitor/internal/model"
)

type mutationRow struct {
	CreatedAt      time.Time `db:"created_at"`
	OldCategory    *string   `db:"old_category"`
	OldSubcategory *string   `db:"old_subcategory"`
	NewCategory    *string   `db:"new_category"`
	NewSubcategory *string   `db:"new_subcategory"`
	OldImages      *string   `db:"old_images"`
	NewImageURL    *string   `db:"new_image_url"`
	RunID          string    `db:"run_id"`
	Kind           string    `db:"kind"`
	Reason         string    `db:"reason"`
	ID             int64     `db:"id"`
	ProductID      int64     `db:"product_id"`
	Score          int       `db:"score"`
}

func (r mutationRow) toModel() (model.Mutation, error) {
	m := model.Mutation{
		ID:          r.ID,
		RunID:       r.RunID,
		ProductID:   r.ProductID,
		Kind:        model.MutationKind(r.Kind),
		Reason:      r.Reason,
		Score:       r.Score,
		CreatedAt:   r.CreatedAt,
		NewImageURL: deref(r.NewImageURL),
	}
	if m.Kind == model.MutationCategory {
		m.OldPlacement = &model.Placement{Category: deref(r.OldCategory), Subcategory: deref(r.OldSubcategory)}
		m.NewPlacement = &model.Placement{Category: deref(r.NewCategory), Subcategory: deref(r.NewSubcategory)}
	}
	if r.OldImages != nil && *r.OldImages != "" {
		if err := json.Unmarshal([]byte(*r.OldImages), &m.OldImages); err != nil {
			return m, fmt.Errorf("failed to decode old images of mutation %d: %w", r.ID, err)
		}
	}
	return m, nil
}

// AppendMutation writes one entry to the mutation log and sets its ID.
func (c *catalog) AppendMutation(ctx context.Context, m *model.Mutation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMutation(m); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var oldCat, oldSub, newCat, newSub *string
	if m.OldPlacement != nil {
		oldCat, oldSub = model.StringPtr(m.OldPlacement.Category), model.StringPtr(m.OldPlacement.Subcategory)
	}
	if m.NewPlacement != nil {
		newCat, newSub = model.StringPtr(m.NewPlacement.Category), model.StringPtr(m.NewPlacement.Subcategory)
	}

	var oldImages *string
	if m.Kind == model.MutationImage {
		images := m.OldImages
		if images == nil {
			images = []model.ProductImage{}
		}
		data, err := json.Marshal(images)
		if err != nil {
			return fmt.Errorf("failed to encode old images: %w", err)
		}
		encoded := string(data)
		oldImages = &encoded
	}

	res, err := c.q.ExecContext(ctx, `
		INSERT INTO mutation_log (
			run_id, product_id, kind,
			old_category, old_subcategory, new_category, new_subcategory,
			old_images, new_image_url, reason, score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.RunID, m.ProductID, string(m.Kind),
		oldCat, oldSub, newCat, newSub,
		oldImages, model.StringPtr(m.NewImageURL), m.Reason, m.Score, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to log mutation for product %d: %w", m.ProductID, mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read mutation ID: %w", err)
	}
	m.ID = id
	return nil
}

// GetMutations returns a run's mutations in the order they were written.
func (c *catalog) GetMutations(ctx context.Context, runID string) ([]model.Mutation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	var rows []mutationRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `
		SELECT id, run_id, product_id, kind,
		       old_category, old_subcategory, new_category, new_subcategory,
		       old_images, new_image_url, reason, score, created_at
		FROM mutation_log
		WHERE run_id = ?
		ORDER BY id
	`, runID); err != nil {
		return nil, fmt.Errorf("failed to get mutations of run %s: %w", runID, mapError(err))
	}

	mutations := make([]model.Mutation, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	return mutations, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
