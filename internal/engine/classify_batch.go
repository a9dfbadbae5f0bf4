package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// ClassifyBatch assigns categories to the selected products. Products a
// scoped rule moved are evaluated again, up to the configured number of
// passes, so chained rules settle within one run. Products no rule matches
// keep their current category.
func (e *Engine) ClassifyBatch(ctx context.Context, sel Selection, opts Options) (*Report, error) {
	if e.deps.Classifier == nil {
		return nil, errors.New("engine: no classifier configured")
	}
	sel, err := sel.resolve(e.cfg)
	if err != nil {
		return nil, err
	}

	return e.execute(ctx, model.RunKindClassify, sel.String(), opts, nil, func(ctx context.Context, b *batch) error {
		products, missing, err := sel.load(ctx, b.tx, service.ProductFilter{})
		if err != nil {
			return err
		}
		return e.classify(ctx, b, products, missing)
	})
}

func (e *Engine) classify(ctx context.Context, b *batch, products []model.Product, missing []model.ItemResult) error {
	items := make([]model.ItemResult, 0, len(products)+len(missing))
	index := make(map[int64]int, len(products))
	current := make(map[int64]model.Product, len(products))
	for _, p := range products {
		index[p.ID] = len(items)
		current[p.ID] = p
		items = append(items, model.ItemResult{ProductID: p.ID})
	}
	items = append(items, missing...)

	pending := products
	pass := 0
	for ; pass < e.cfg.MaxPasses && len(pending) > 0; pass++ {
		var moved []model.Product
		for n, orig := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := current[orig.ID]
			ok, err := e.classifyOne(ctx, b, &p, &items[index[p.ID]], pass)
			if err != nil {
				return err
			}
			if ok {
				current[p.ID] = p
				moved = append(moved, p)
			}
			if pass == 0 && b.opts.Progress != nil {
				b.opts.Progress(n+1, len(pending))
			}
		}
		pending = moved
	}

	if len(pending) > 0 {
		slog.Warn("Classification stopped before settling",
			"run_id", b.run.ID, "passes", pass, "still_moving", len(pending))
	}

	b.report.Passes = pass
	for _, item := range items {
		b.record(item)
	}
	return nil
}

// classifyOne evaluates one product and applies the decision. It reports
// whether the product moved, updating p to its new placement.
func (e *Engine) classifyOne(ctx context.Context, b *batch, p *model.Product, item *model.ItemResult, pass int) (bool, error) {
	first := pass == 0

	if strings.TrimSpace(p.SearchText()) == "" {
		item.Outcome = model.OutcomeInvalid
		item.Error = "product has no text to classify"
		return false, nil
	}

	d := e.deps.Classifier.Classify(*p)
	if d == nil {
		if first {
			item.Outcome = model.OutcomeNoMatch
		}
		return false, nil
	}
	old := p.Placement()
	if old.Equal(d.Placement) {
		if first {
			item.Outcome = model.OutcomeAlreadySet
			item.Rule = d.Rule
		}
		return false, nil
	}

	target := d.Placement
	itemErr, err := b.apply(ctx, func() error {
		if err := b.tx.UpdatePlacement(ctx, p.ID, target); err != nil {
			return err
		}
		return b.tx.AppendMutation(ctx, &model.Mutation{
			RunID:        b.run.ID,
			ProductID:    p.ID,
			Kind:         model.MutationCategory,
			OldPlacement: &old,
			NewPlacement: &target,
			Reason:       d.Reason(),
		})
	})
	if err != nil {
		return false, err
	}
	if itemErr != nil {
		slog.Warn("Failed to update category", "run_id", b.run.ID, "product_id", p.ID, "pass", pass+1, "error", itemErr)
		item.Error = errorString(itemErr)
		if item.Outcome == model.OutcomeApplied {
			// An earlier pass moved the product and that move stays committed.
			item.Error = fmt.Sprintf("pass %d: %s", pass+1, item.Error)
		} else {
			item.Outcome = model.OutcomeFailed
		}
		return false, nil
	}

	slog.Info("Applied category",
		"run_id", b.run.ID,
		"product_id", p.ID,
		"old", old.String(),
		"new", target.String(),
		"rule", d.Rule,
		"pass", pass+1,
		"dry_run", b.opts.DryRun)

	if item.Old == nil {
		item.Old = &old
	}
	item.New = &target
	item.Rule = d.Rule
	item.Outcome = model.OutcomeApplied
	item.Error = ""

	p.Category = model.StringPtr(target.Category)
	p.Subcategory = model.StringPtr(target.Subcategory)
	return true, nil
}
