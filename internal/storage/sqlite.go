package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// queryable is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryable interface {
	sqlx.ExtContext
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	catalog
	db     *sqlx.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// _txlock=immediate takes the write lock at BEGIN so a batch never
	// discovers a competing writer halfway through.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", mapError(err))
	}

	s := &SQLiteStorage{db: db, dbPath: dbPath}
	s.catalog = catalog{q: db, atomic: s.inTx}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// NewCheckpointManager creates a new checkpoint manager for this storage instance.
func (s *SQLiteStorage) NewCheckpointManager() (*CheckpointManager, error) {
	return NewCheckpointManager(s.db, s.dbPath)
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	t := &sqliteTransaction{tx: tx}
	t.catalog = catalog{
		q:      tx,
		atomic: func(_ context.Context, fn func(queryable) error) error { return fn(tx) },
	}
	return t, nil
}

// inTx runs fn inside its own transaction.
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(queryable) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// sqliteTransaction wraps sqlx.Tx to implement service.Transaction.
type sqliteTransaction struct {
	catalog
	tx *sqlx.Tx
}

func (t *sqliteTransaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

func (t *sqliteTransaction) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *sqliteTransaction) Savepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "SAVEPOINT %s", name)
}

func (t *sqliteTransaction) ReleaseSavepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "RELEASE SAVEPOINT %s", name)
}

func (t *sqliteTransaction) RollbackToSavepoint(ctx context.Context, name string) error {
	if err := t.savepointExec(ctx, "ROLLBACK TO SAVEPOINT %s", name); err != nil {
		return err
	}
	// ROLLBACK TO leaves the savepoint on the stack.
	return t.savepointExec(ctx, "RELEASE SAVEPOINT %s", name)
}

func (t *sqliteTransaction) savepointExec(ctx context.Context, format, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateIdentifier(name); err != nil {
		return err
	}
	// #nosec G201 - name is validated as an identifier above
	if _, err := t.tx.ExecContext(ctx, fmt.Sprintf(format, name)); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, mapError(err))
	}
	return nil
}

// mapError tags SQLite lock contention with common.ErrStoreBusy so callers
// can retry it.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %w", common.ErrStoreBusy, err)
		}
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %w", common.ErrStoreBusy, err)
	}
	return err
}
