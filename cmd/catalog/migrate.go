package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/cli"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on open as well; this one only reports the
resulting schema version.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("sync-taxonomy", true, "Sync the loaded taxonomy into the categories table")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	syncTaxonomy, _ := cmd.Flags().GetBool("sync-taxonomy")

	slog.Info("Starting database migration", "database", settings.Database.Path)

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	schema, err := a.store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if syncTaxonomy {
		rs, err := a.rules()
		if err != nil {
			return err
		}
		if _, err := a.store.SyncTaxonomy(ctx, rs.Taxonomy); err != nil {
			return fmt.Errorf("failed to sync taxonomy: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Database at schema version %d (%s)", schema, a.store.Path())))
	return nil
}
