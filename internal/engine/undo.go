package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
)

// Undo reverts every mutation of a run, newest first. A product whose
// current value no longer matches what the run wrote is left alone and
// reported as a conflict. The reverted run is marked so it cannot be undone
// twice.
func (e *Engine) Undo(ctx context.Context, runID string, opts Options) (*Report, error) {
	run, err := e.deps.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	switch {
	case run.Kind == model.RunKindUndo:
		return nil, common.NewUserError("undo runs cannot be reverted", common.ErrInvalidConfig)
	case run.DryRun:
		return nil, common.NewUserError("dry runs wrote nothing to revert", common.ErrInvalidConfig)
	case run.RevertedAt != nil:
		return nil, fmt.Errorf("run %s: %w", runID, common.ErrAlreadyReverted)
	case run.FinishedAt == nil:
		return nil, common.NewUserError(fmt.Sprintf("run %s never finished", runID), common.ErrInvalidConfig)
	}

	reverts := run.ID
	return e.execute(ctx, model.RunKindUndo, "run="+run.ID, opts, &reverts, func(ctx context.Context, b *batch) error {
		mutations, err := b.tx.GetMutations(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load mutations: %w", err)
		}

		ids := make([]int64, 0, len(mutations))
		for _, m := range mutations {
			ids = append(ids, m.ProductID)
		}
		ids = dedupe(ids)

		products, err := b.tx.GetProductsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load products: %w", err)
		}
		images, err := b.tx.GetImages(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load product images: %w", err)
		}

		u := &undoer{
			batch:      b,
			placements: make(map[int64]model.Placement, len(products)),
			images:     images,
		}
		for _, p := range products {
			u.placements[p.ID] = p.Placement()
		}

		for i := len(mutations) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := u.revert(ctx, mutations[i])
			if err != nil {
				return err
			}
			b.record(item)
			if opts.Progress != nil {
				opts.Progress(len(mutations)-i, len(mutations))
			}
		}

		if opts.DryRun {
			return nil
		}
		return b.tx.MarkRunReverted(ctx, run.ID, time.Now().UTC())
	})
}

// undoer tracks the values each product holds as mutations are reverted.
type undoer struct {
	batch      *batch
	placements map[int64]model.Placement
	images     map[int64][]model.ProductImage
}

func (u *undoer) revert(ctx context.Context, m model.Mutation) (model.ItemResult, error) {
	item := model.ItemResult{ProductID: m.ProductID}

	current, ok := u.placements[m.ProductID]
	if !ok {
		item.Outcome = model.OutcomeInvalid
		item.Error = "product not found"
		return item, nil
	}

	switch m.Kind {
	case model.MutationCategory:
		return u.revertCategory(ctx, m, current, item)
	case model.MutationImage:
		return u.revertImage(ctx, m, item)
	default:
		item.Outcome = model.OutcomeInvalid
		item.Error = fmt.Sprintf("unknown mutation kind %q", m.Kind)
		return item, nil
	}
}

func (u *undoer) revertCategory(ctx context.Context, m model.Mutation, current model.Placement, item model.ItemResult) (model.ItemResult, error) {
	b := u.batch
	logged, restore := *m.NewPlacement, *m.OldPlacement
	item.Old = &current
	item.New = &restore

	if !current.Equal(logged) {
		item.Outcome = model.OutcomeConflict
		item.Error = fmt.Sprintf("category is now %q, run wrote %q", current.String(), logged.String())
		return item, nil
	}

	itemErr, err := b.apply(ctx, func() error {
		if err := b.tx.UpdatePlacement(ctx, m.ProductID, restore); err != nil {
			return err
		}
		return b.tx.AppendMutation(ctx, &model.Mutation{
			RunID:        b.run.ID,
			ProductID:    m.ProductID,
			Kind:         model.MutationCategory,
			OldPlacement: &current,
			NewPlacement: &restore,
			Reason:       fmt.Sprintf("undo of mutation %d", m.ID),
		})
	})
	if err != nil {
		return item, err
	}
	if itemErr != nil {
		item.Outcome = model.OutcomeFailed
		item.Error = errorString(itemErr)
		return item, nil
	}

	slog.Info("Reverted category",
		"run_id", b.run.ID,
		"product_id", m.ProductID,
		"old", current.String(),
		"new", restore.String(),
		"mutation_id", m.ID,
		"dry_run", b.opts.DryRun)

	u.placements[m.ProductID] = restore
	item.Outcome = model.OutcomeApplied
	return item, nil
}

func (u *undoer) revertImage(ctx context.Context, m model.Mutation, item model.ItemResult) (model.ItemResult, error) {
	b := u.batch
	current := u.images[m.ProductID]
	item.ImageURL = m.NewImageURL

	if p := model.PrimaryImage(current); p == nil || p.URL != m.NewImageURL {
		item.Outcome = model.OutcomeConflict
		item.Error = "primary image changed since the run"
		return item, nil
	}

	restored := ""
	if p := model.PrimaryImage(m.OldImages); p != nil {
		restored = p.URL
	}

	itemErr, err := b.apply(ctx, func() error {
		if err := b.tx.RestoreImages(ctx, m.ProductID, m.OldImages); err != nil {
			return err
		}
		return b.tx.AppendMutation(ctx, &model.Mutation{
			RunID:       b.run.ID,
			ProductID:   m.ProductID,
			Kind:        model.MutationImage,
			OldImages:   current,
			NewImageURL: restored,
			Reason:      fmt.Sprintf("undo of mutation %d", m.ID),
		})
	})
	if err != nil {
		return item, err
	}
	if itemErr != nil {
		item.Outcome = model.OutcomeFailed
		item.Error = errorString(itemErr)
		return item, nil
	}

	slog.Info("Reverted image",
		"run_id", b.run.ID,
		"product_id", m.ProductID,
		"old", m.NewImageURL,
		"new", restored,
		"mutation_id", m.ID,
		"dry_run", b.opts.DryRun)

	u.images[m.ProductID] = m.OldImages
	item.Outcome = model.OutcomeApplied
	return item, nil
}
