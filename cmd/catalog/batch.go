package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/cli"
	"github.com/Veraticus/catalog-janitor/internal/engine"
)

// selectionFlags are the flags shared by every batch command.
type selectionFlags struct {
	category     string
	subcategory  string
	ids          []int64
	afterID      int64
	limit        int
	unclassified bool
	dryRun       bool
	verbose      bool
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int64SliceVar(&f.ids, "ids", nil, "Product IDs to process")
	flags.StringVar(&f.category, "category", "", "Only products currently in this category")
	flags.StringVar(&f.subcategory, "subcategory", "", "Only products currently in this subcategory")
	flags.BoolVar(&f.unclassified, "unclassified", false, "Only products without a category")
	flags.Int64Var(&f.afterID, "after", 0, "Skip products with an ID up to and including this one")
	flags.IntVar(&f.limit, "limit", 0, "Maximum products in the batch (default from batch.limit)")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Compute outcomes without writing")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "List every item")
}

func (f *selectionFlags) selection() engine.Selection {
	return engine.Selection{
		IDs:          f.ids,
		Category:     f.category,
		Subcategory:  f.subcategory,
		Unclassified: f.unclassified,
		AfterID:      f.afterID,
		Limit:        f.limit,
	}
}

// batchJob runs one engine batch with a progress bar and prints its report.
func batchJob(cmd *cobra.Command, f *selectionFlags, label string,
	run func(*engine.Engine, engine.Options) (*engine.Report, error),
) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, err := a.engine()
	if err != nil {
		return err
	}

	progress := cli.NewProgress(os.Stderr, label)
	report, err := run(eng, engine.Options{DryRun: f.dryRun, Progress: progress.Func()})
	progress.Finish()
	if err != nil {
		return err
	}

	a.flushMetrics(ctx)

	if err := cli.RenderReport(cmd.OutOrStdout(), report, f.verbose); err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d items failed, see run %s", n, report.RunID)
	}
	return nil
}
