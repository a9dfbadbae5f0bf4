package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial catalog schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS products (
					id INTEGER PRIMARY KEY,
					name TEXT NOT NULL,
					brand TEXT,
					category TEXT,
					subcategory TEXT,
					description TEXT,
					price TEXT NOT NULL DEFAULT '0',
					stock_quantity INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category, subcategory)`,

				`CREATE TABLE IF NOT EXISTS product_images (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					product_id INTEGER NOT NULL,
					image_url TEXT NOT NULL,
					is_primary BOOLEAN NOT NULL DEFAULT 0,
					sort_order INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX IF NOT EXISTS idx_product_images_product ON product_images(product_id)`,
				`CREATE INDEX IF NOT EXISTS idx_product_images_url ON product_images(image_url)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add categories table for the storefront taxonomy",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					subcategory TEXT NOT NULL DEFAULT '',
					position INTEGER NOT NULL DEFAULT 0,
					is_active BOOLEAN DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(name, subcategory)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_categories_active ON categories(is_active)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add batch runs, mutation log and batch lock",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS batch_runs (
					id TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					scope TEXT NOT NULL DEFAULT '',
					dry_run BOOLEAN NOT NULL DEFAULT 0,
					started_at DATETIME NOT NULL,
					finished_at DATETIME,
					reverted_at DATETIME,
					reverts_run TEXT,
					counts TEXT NOT NULL DEFAULT '{}',
					FOREIGN KEY (reverts_run) REFERENCES batch_runs(id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_batch_runs_started ON batch_runs(started_at)`,

				`CREATE TABLE IF NOT EXISTS mutation_log (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					product_id INTEGER NOT NULL,
					kind TEXT NOT NULL,
					old_category TEXT,
					old_subcategory TEXT,
					new_category TEXT,
					new_subcategory TEXT,
					old_images TEXT,
					new_image_url TEXT,
					reason TEXT NOT NULL DEFAULT '',
					score INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (run_id) REFERENCES batch_runs(id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_mutation_log_run ON mutation_log(run_id)`,
				`CREATE INDEX IF NOT EXISTS idx_mutation_log_product ON mutation_log(product_id)`,

				`CREATE TABLE IF NOT EXISTS batch_lock (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					owner TEXT NOT NULL,
					acquired_at DATETIME NOT NULL
				)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Add checkpoint metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto BOOLEAN DEFAULT 0,
					parent_checkpoint TEXT
				)`,
			})
		},
	},
}

// SchemaVersion reports the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", mapError(err))
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if currentVersion > ExpectedSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, ExpectedSchemaVersion)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", mapError(txErr))
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// #nosec G201 - version is an integer constant from the migration table
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, mapError(commitErr))
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
