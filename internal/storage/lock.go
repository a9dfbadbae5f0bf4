package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/catalog-janitor/internal/common"
)

// BatchLock describes the current holder of the batch lock.
type BatchLock struct {
	AcquiredAt time.Time `db:"acquired_at"`
	Owner      string    `db:"owner"`
}

// AcquireBatchLock takes the store-wide batch lock for owner. It fails with
// common.ErrBatchLocked while any other owner holds it.
func (s *SQLiteStorage) AcquireBatchLock(ctx context.Context, owner string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(owner, "owner"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_lock (id, owner, acquired_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, owner, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to acquire batch lock: %w", mapError(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		holder, _ := s.GetBatchLock(ctx)
		if holder != nil {
			return fmt.Errorf("%w: held by %s since %s", common.ErrBatchLocked, holder.Owner, holder.AcquiredAt.Format(time.RFC3339))
		}
		return common.ErrBatchLocked
	}

	slog.Debug("acquired batch lock", "owner", owner)
	return nil
}

// ReleaseBatchLock frees the lock if owner holds it.
func (s *SQLiteStorage) ReleaseBatchLock(ctx context.Context, owner string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(owner, "owner"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM batch_lock WHERE id = 1 AND owner = ?`, owner); err != nil {
		return fmt.Errorf("failed to release batch lock: %w", mapError(err))
	}
	slog.Debug("released batch lock", "owner", owner)
	return nil
}

// GetBatchLock returns the current lock holder, or nil when unlocked.
func (s *SQLiteStorage) GetBatchLock(ctx context.Context) (*BatchLock, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var lock BatchLock
	err := sqlx.GetContext(ctx, s.db, &lock, `SELECT owner, acquired_at FROM batch_lock WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch lock: %w", mapError(err))
	}
	return &lock, nil
}

// BreakBatchLock removes the lock regardless of owner. It is meant for
// clearing a lock left behind by a crashed process.
func (s *SQLiteStorage) BreakBatchLock(ctx context.Context) (*BatchLock, error) {
	lock, err := s.GetBatchLock(ctx)
	if err != nil || lock == nil {
		return lock, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM batch_lock WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("failed to break batch lock: %w", mapError(err))
	}
	slog.Warn("broke batch lock", "owner", lock.Owner, "acquired_at", lock.AcquiredAt)
	return lock, nil
}
