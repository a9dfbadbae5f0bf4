package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
)

type runRow struct {
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	RevertedAt *time.Time `db:"reverted_at"`
	RevertsRun *string    `db:"reverts_run"`
	ID         string     `db:"id"`
	Kind       string     `db:"kind"`
	Scope      string     `db:"scope"`
	Counts     string     `db:"counts"`
	DryRun     bool       `db:"dry_run"`
}

func (r runRow) toModel() (model.Run, error) {
	run := model.Run{
		ID:         r.ID,
		Kind:       model.RunKind(r.Kind),
		Scope:      r.Scope,
		DryRun:     r.DryRun,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		RevertedAt: r.RevertedAt,
		RevertsRun: r.RevertsRun,
		Counts:     map[model.Outcome]int{},
	}
	if r.Counts != "" {
		if err := json.Unmarshal([]byte(r.Counts), &run.Counts); err != nil {
			return run, fmt.Errorf("failed to decode counts of run %s: %w", r.ID, err)
		}
	}
	return run, nil
}

const runColumns = `id, kind, scope, dry_run, started_at, finished_at, reverted_at, reverts_run, counts`

// CreateRun records the start of a batch run.
func (c *catalog) CreateRun(ctx context.Context, run *model.Run) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	counts, err := encodeCounts(run.Counts)
	if err != nil {
		return err
	}
	if _, err := c.q.ExecContext(ctx, `
		INSERT INTO batch_runs (id, kind, scope, dry_run, started_at, reverts_run, counts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Kind), run.Scope, run.DryRun, run.StartedAt.UTC(), run.RevertsRun, counts); err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, mapError(err))
	}
	return nil
}

// FinishRun stores a run's end time and outcome counts.
func (c *catalog) FinishRun(ctx context.Context, run *model.Run) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	counts, err := encodeCounts(run.Counts)
	if err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, `
		UPDATE batch_runs SET finished_at = ?, counts = ? WHERE id = ?
	`, run.FinishedAt.UTC(), counts, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, mapError(err))
	}
	return requireRow(res, "run "+run.ID)
}

// GetRun retrieves a run together with its mutations.
func (c *catalog) GetRun(ctx context.Context, id string) (*model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var row runRow
	err := sqlx.GetContext(ctx, c.q, &row, `SELECT `+runColumns+` FROM batch_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, mapError(err))
	}

	run, err := row.toModel()
	if err != nil {
		return nil, err
	}
	mutations, err := c.GetMutations(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Mutations = mutations
	return &run, nil
}

// ListRuns returns the most recent runs first, without mutations.
func (c *catalog) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, common.ErrLimitRequired
	}

	var rows []runRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `
		SELECT `+runColumns+` FROM batch_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", mapError(err))
	}

	runs := make([]model.Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// MarkRunReverted stamps a run as undone. A run can only be reverted once.
func (c *catalog) MarkRunReverted(ctx context.Context, id string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := c.q.ExecContext(ctx, `
		UPDATE batch_runs SET reverted_at = ? WHERE id = ? AND reverted_at IS NULL
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark run %s reverted: %w", id, mapError(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, common.ErrAlreadyReverted)
	}
	return nil
}

func encodeCounts(counts map[model.Outcome]int) (string, error) {
	if counts == nil {
		return "{}", nil
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return "", fmt.Errorf("failed to encode counts: %w", err)
	}
	return string(data), nil
}
