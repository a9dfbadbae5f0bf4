package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/cli"
	"github.com/Veraticus/catalog-janitor/internal/engine"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and undo batch runs",
	}

	cmd.AddCommand(listRunsCmd())
	cmd.AddCommand(showRunCmd())
	cmd.AddCommand(undoRunCmd())

	return cmd
}

func listRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.ListRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return cli.RenderRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	return cmd
}

func showRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its mutation log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.store.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get run %s: %w", args[0], err)
			}
			return cli.RenderRun(cmd.OutOrStdout(), run)
		},
	}
}

func undoRunCmd() *cobra.Command {
	var flags selectionFlags

	cmd := &cobra.Command{
		Use:   "undo <run-id>",
		Short: "Revert every mutation of a run",
		Long: `Revert a run's mutations in reverse order.

Products changed again since the run are left alone and reported as
conflicts. The undo is itself a run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return batchJob(cmd, &flags, "Reverting run...",
				func(eng *engine.Engine, opts engine.Options) (*engine.Report, error) {
					return eng.Undo(cmd.Context(), args[0], opts)
				})
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show what would be reverted without writing")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "List every item")

	return cmd
}
