package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/catalog-janitor/internal/imagematch"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// MatchImagesBatch attaches the best matching image file to each selected
// product. Without Replace only products lacking a primary image are
// touched and the match is added as the new primary; with Replace the
// product's images are replaced by the match. An image goes to at most one
// product.
func (e *Engine) MatchImagesBatch(ctx context.Context, sel Selection, opts Options) (*Report, error) {
	if e.deps.Matcher == nil || e.deps.Images == nil {
		return nil, errors.New("engine: image matching is not configured")
	}
	sel, err := sel.resolve(e.cfg)
	if err != nil {
		return nil, err
	}

	candidates, err := e.deps.Images.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list image candidates: %w", err)
	}

	scope := sel.String()
	if opts.Replace {
		scope += " replace"
	}

	return e.execute(ctx, model.RunKindImages, scope, opts, nil, func(ctx context.Context, b *batch) error {
		filter := service.ProductFilter{MissingPrimaryImage: !opts.Replace}
		products, missing, err := sel.load(ctx, b.tx, filter)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(products))
		for _, p := range products {
			ids = append(ids, p.ID)
		}
		images, err := b.tx.GetImages(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load product images: %w", err)
		}
		owners, err := b.tx.GetImageOwners(ctx)
		if err != nil {
			return fmt.Errorf("failed to load image owners: %w", err)
		}
		pool := imagematch.NewPool(candidates, owners)
		if free := pool.Len(); free == 0 {
			slog.Warn("No free image candidates; only images a product already owns can match",
				"run_id", b.run.ID, "candidates", len(candidates))
		} else {
			slog.Debug("Image pool ready", "run_id", b.run.ID, "candidates", len(candidates), "free", free)
		}

		for n, p := range products {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := e.matchOne(ctx, b, pool, p, images[p.ID])
			if err != nil {
				return err
			}
			b.record(item)
			if opts.Progress != nil {
				opts.Progress(n+1, len(products))
			}
		}
		for _, item := range missing {
			b.record(item)
		}
		return nil
	})
}

func (e *Engine) matchOne(ctx context.Context, b *batch, pool *imagematch.Pool, p model.Product, existing []model.ProductImage) (model.ItemResult, error) {
	item := model.ItemResult{ProductID: p.ID}

	if strings.TrimSpace(p.Name) == "" {
		item.Outcome = model.OutcomeInvalid
		item.Error = "product has no name to match"
		return item, nil
	}
	primary := model.PrimaryImage(existing)
	if !b.opts.Replace && primary != nil {
		item.Outcome = model.OutcomeAlreadySet
		item.ImageURL = primary.URL
		return item, nil
	}

	m := e.deps.Matcher.Best(p, pool)
	if m == nil {
		item.Outcome = model.OutcomeNoMatch
		return item, nil
	}
	e.deps.Recorder.ObserveScore(m.Score)
	url := m.Candidate.URL
	item.ImageURL = url
	item.Score = m.Score

	if alreadyAttached(existing, url, b.opts.Replace) {
		pool.Consume(url, p.ID)
		item.Outcome = model.OutcomeAlreadySet
		return item, nil
	}

	itemErr, err := b.apply(ctx, func() error {
		var err error
		if b.opts.Replace {
			err = b.tx.ReplaceImages(ctx, p.ID, url)
		} else {
			err = b.tx.AddPrimaryImage(ctx, p.ID, url)
		}
		if err != nil {
			return err
		}
		return b.tx.AppendMutation(ctx, &model.Mutation{
			RunID:       b.run.ID,
			ProductID:   p.ID,
			Kind:        model.MutationImage,
			OldImages:   existing,
			NewImageURL: url,
			Score:       m.Score,
			Reason:      fmt.Sprintf("image %q scored %d", m.Candidate.Basename, m.Score),
		})
	})
	if err != nil {
		return item, err
	}
	if itemErr != nil {
		slog.Warn("Failed to attach image", "run_id", b.run.ID, "product_id", p.ID, "error", itemErr)
		item.Outcome = model.OutcomeFailed
		item.Error = errorString(itemErr)
		return item, nil
	}

	pool.Consume(url, p.ID)
	if b.opts.Replace {
		pool.Release(p.ID, url)
	}

	old := ""
	if primary != nil {
		old = primary.URL
	}
	slog.Info("Applied image",
		"run_id", b.run.ID,
		"product_id", p.ID,
		"old", old,
		"new", url,
		"score", m.Score,
		"replace", b.opts.Replace,
		"dry_run", b.opts.DryRun)

	item.Outcome = model.OutcomeApplied
	return item, nil
}

// alreadyAttached reports whether writing url would leave the product's
// images unchanged.
func alreadyAttached(existing []model.ProductImage, url string, replace bool) bool {
	if replace {
		return len(existing) == 1 && existing[0].URL == url && existing[0].IsPrimary
	}
	for _, img := range existing {
		if img.URL == url {
			return true
		}
	}
	return false
}
