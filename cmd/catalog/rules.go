package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/classify"
	"github.com/Veraticus/catalog-janitor/internal/cli"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect category rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the active rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := classify.Load(settings.Rules.Path)
			if err != nil {
				return err
			}
			return cli.RenderRules(cmd.OutOrStdout(), rs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a rule file against its taxonomy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := settings.Rules.Path
			if len(args) == 1 {
				path = args[0]
			}
			rs, err := classify.Load(path)
			if err != nil {
				return err
			}

			source := path
			if source == "" {
				source = "built-in rules"
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s: %d rules, %d categories",
				source, len(rs.Rules), len(rs.Taxonomy.Categories()))))
			return nil
		},
	})

	return cmd
}

func taxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Inspect and sync the category taxonomy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the category tree stored in the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := a.store.GetCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			if len(categories) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(`No categories stored yet, run "catalog taxonomy sync".`))
				return nil
			}
			return cli.RenderTaxonomy(cmd.OutOrStdout(), categories)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Write the loaded taxonomy to the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rs, err := a.rules()
			if err != nil {
				return err
			}
			changed, err := a.store.SyncTaxonomy(ctx, rs.Taxonomy)
			if err != nil {
				return fmt.Errorf("failed to sync taxonomy: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Synced taxonomy, %d categories changed", changed)))
			return nil
		},
	})

	return cmd
}
