package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/cli"
)

func unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Clear a batch lock left behind by a crashed process",
		Long: `Remove the store's batch lock regardless of who holds it.

Only use this when no other catalog process is running; a live batch whose
lock is broken can race with the next one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			lock, err := a.store.BreakBatchLock(ctx)
			if err != nil {
				return err
			}
			if lock == nil {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No batch lock held."))
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Removed lock held by %s since %s",
				lock.Owner, lock.AcquiredAt.Local().Format("2006-01-02 15:04:05"))))
			return nil
		},
	}
}
