package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/catalog-janitor/internal/cli"
	"github.com/Veraticus/catalog-janitor/internal/importer"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import products from CSV or JSON exports",
		Long: `Import products from shop exports or scraper output.

CSV files need a header row; JSON files hold an array of product objects.
Records with data-quality problems (no name, bad price, negative stock) are
skipped and listed, the rest of the file is still imported. Records with an
id update the existing product.`,
		Example: `  # Import a spreadsheet export
  catalog import products.csv

  # Import scraper output, forcing the format
  catalog import --format json scraped.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("format", "", "Input format (csv, json); detected from the extension when empty")
	cmd.Flags().Bool("dry-run", false, "Parse and validate without writing")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	formatFlag, _ := cmd.Flags().GetString("format")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	parser := importer.NewParser()
	imp := importer.New(a.store)

	for _, path := range args {
		format := importer.Format(strings.ToLower(formatFlag))
		if format == "" {
			if format, err = importer.DetectFormat(path); err != nil {
				return err
			}
		}

		res, err := parseFile(cmd, parser, path, format)
		if err != nil {
			return err
		}

		summary := &importer.Summary{Total: res.Total, Skipped: res.Skipped}
		if !dryRun {
			if summary, err = imp.Import(ctx, res); err != nil {
				return fmt.Errorf("failed to import %s: %w", path, err)
			}
		} else {
			summary.Imported = len(res.Records)
		}

		renderImport(cmd, filepath.Base(path), summary, dryRun)
	}

	if !dryRun {
		a.flushMetrics(ctx)
	}
	return nil
}

func parseFile(cmd *cobra.Command, parser *importer.Parser, path string, format importer.Format) (*importer.Result, error) {
	f, err := os.Open(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Failed to close import file", "path", path, "error", err)
		}
	}()

	res, err := parser.ParseFile(cmd.Context(), f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return res, nil
}

func renderImport(cmd *cobra.Command, name string, s *importer.Summary, dryRun bool) {
	out := cmd.OutOrStdout()

	verb := "Imported"
	if dryRun {
		verb = "Would import"
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s %d of %d records from %s (%d images)",
		verb, s.Imported, s.Total, name, s.Images)))

	if len(s.Skipped) == 0 {
		return
	}
	fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Skipped %d records:", len(s.Skipped))))
	for _, skip := range s.Skipped {
		label := skip.Name
		if label == "" {
			label = "(no name)"
		}
		fmt.Fprintf(out, "  line %d  %s  %s\n", skip.Line, label, cli.SubtleStyle.Render(skip.Reason))
	}
}
