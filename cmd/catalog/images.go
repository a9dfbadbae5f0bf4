package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/cli"
	"github.com/Veraticus/catalog-janitor/internal/engine"
)

func imagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Match and repair product images",
	}

	cmd.AddCommand(matchImagesCmd())
	cmd.AddCommand(repairImagesCmd())

	return cmd
}

func matchImagesCmd() *cobra.Command {
	var (
		flags   selectionFlags
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Attach image files to products by name",
		Long: `Score every image file in images.dir against product names and attach
the best file above images.threshold as the primary image.

Each file goes to at most one product. Files already attached to a product
are never offered again. Without --replace only products lacking a primary
image are considered.`,
		Example: `  # Attach images to unimaged products
  catalog images match --limit 500

  # Re-match specific products, replacing their images
  catalog images match --ids 12,40 --replace`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return batchJob(cmd, &flags, "Matching images...",
				func(eng *engine.Engine, opts engine.Options) (*engine.Report, error) {
					opts.Replace = replace
					return eng.MatchImagesBatch(cmd.Context(), flags.selection(), opts)
				})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace existing images instead of skipping imaged products")

	return cmd
}

func repairImagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Leave exactly one primary image on every product with images",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.RepairPrimaryImages(ctx)
			if err != nil {
				return fmt.Errorf("failed to repair primary images: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Repaired %d products", n)))
			return nil
		},
	}
}
