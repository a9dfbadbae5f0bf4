package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/cli"
	"github.com/Veraticus/catalog-janitor/internal/report"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "List products that still need cleanup",
	}

	cmd.AddCommand(listingCmd(report.Unclassified, "List products without a category"))
	cmd.AddCommand(listingCmd(report.Unimaged, "List products without a primary image"))

	return cmd
}

func listingCmd(kind report.Kind, short string) *cobra.Command {
	var (
		page   report.Page
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			listing, err := report.Build(ctx, a.store, kind, page)
			if err != nil {
				return fmt.Errorf("failed to build %s report: %w", kind, err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(listing)
			}
			return cli.RenderListing(cmd.OutOrStdout(), listing)
		},
	}

	cmd.Flags().IntVar(&page.Limit, "limit", report.DefaultLimit, "Page size")
	cmd.Flags().Int64Var(&page.AfterID, "after", 0, "Start after this product ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	if kind == report.Unimaged {
		cmd.Flags().StringVar(&page.Category, "category", "", "Only products in this category")
	}

	return cmd
}
