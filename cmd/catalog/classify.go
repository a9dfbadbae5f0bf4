package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/engine"
)

func classifyCmd() *cobra.Command {
	var flags selectionFlags

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "File products into the storefront taxonomy",
		Long: `Run the category rules over a bounded set of products.

Products that match no rule keep their current category. Every change is
logged against a run that "catalog runs undo" can revert.`,
		Example: `  # Classify everything without a category, 200 at a time
  catalog classify --unclassified --limit 200

  # Preview moving supplements into their subcategories
  catalog classify --category suplemente --dry-run -v`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return batchJob(cmd, &flags, "Classifying products...",
				func(eng *engine.Engine, opts engine.Options) (*engine.Report, error) {
					return eng.ClassifyBatch(cmd.Context(), flags.selection(), opts)
				})
		},
	}

	flags.register(cmd)
	return cmd
}
