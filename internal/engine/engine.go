// Package engine runs bounded, logged and reversible batch jobs over the
// catalog: category classification, image matching and undo.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// Config bounds batch jobs.
type Config struct {
	Retry        service.RetryOptions
	DefaultLimit int
	MaxLimit     int
	// MaxPasses bounds how often classification re-evaluates products that
	// moved in the previous pass.
	MaxPasses int
	// Checkpoint takes an automatic checkpoint before every writing batch.
	Checkpoint bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: 100,
		MaxLimit:     5000,
		MaxPasses:    3,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
		},
	}
}

// Deps are the collaborators of an Engine. Only Store is required.
type Deps struct {
	Store       service.Storage
	Classifier  Classifier
	Matcher     ImageMatcher
	Images      ImageSource
	Checkpoints Checkpointer
	Recorder    Recorder
}

// Options tune a single batch.
type Options struct {
	Progress ProgressFunc
	// DryRun computes outcomes without writing anything.
	DryRun bool
	// Replace lets image matching overwrite products that already have a
	// primary image.
	Replace bool
}

// Engine executes batch jobs. Jobs on one Engine run one at a time; jobs
// from other processes are kept out by the store's batch lock.
type Engine struct {
	deps Deps
	cfg  Config
	mu   sync.Mutex
}

// Report summarizes a batch.
type Report struct {
	StartedAt  time.Time                 `json:"started_at"`
	Counts     map[model.Outcome]int     `json:"counts"`
	Offending  map[model.Outcome][]int64 `json:"offending,omitempty"`
	RunID      string                    `json:"run_id"`
	Kind       model.RunKind             `json:"kind"`
	Scope      string                    `json:"scope"`
	Checkpoint string                    `json:"checkpoint,omitempty"`
	Items      []model.ItemResult        `json:"items"`
	Duration   time.Duration             `json:"duration"`
	// Passes counts the classification passes run, including the last one
	// that found nothing left to move.
	Passes     int                       `json:"passes,omitempty"`
	DryRun     bool                      `json:"dry_run"`
}

// Applied returns how many items were changed.
func (r *Report) Applied() int {
	return r.Counts[model.OutcomeApplied]
}

// Failed returns how many items hit a storage error.
func (r *Report) Failed() int {
	return r.Counts[model.OutcomeFailed]
}

// New creates an engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	def := DefaultConfig()
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = def.MaxPasses
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	return &Engine{deps: deps, cfg: cfg}, nil
}

// batch carries the state shared by one run.
type batch struct {
	tx     service.Transaction
	report *Report
	run    *model.Run
	opts   Options
	seq    int
}

func newReport(kind model.RunKind, scope string, dryRun bool) *Report {
	counts := make(map[model.Outcome]int, len(model.Outcomes))
	for _, o := range model.Outcomes {
		counts[o] = 0
	}
	return &Report{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Scope:     scope,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
		Counts:    counts,
		Offending: make(map[model.Outcome][]int64),
	}
}

// execute wraps a batch body with locking, checkpointing, retries and the
// run record. body receives a fresh transaction and report on every attempt.
func (e *Engine) execute(ctx context.Context, kind model.RunKind, scope string, opts Options,
	revertsRun *string, body func(ctx context.Context, b *batch) error) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	report := newReport(kind, scope, opts.DryRun)
	logger := slog.With("run_id", report.RunID, "kind", kind, "dry_run", opts.DryRun)

	if !opts.DryRun {
		if err := e.deps.Store.AcquireBatchLock(ctx, report.RunID); err != nil {
			return nil, err
		}
		defer func() {
			// The lock must go even when ctx was canceled.
			if err := e.deps.Store.ReleaseBatchLock(context.WithoutCancel(ctx), report.RunID); err != nil {
				logger.Error("Failed to release batch lock", "error", err)
			}
		}()

		if e.cfg.Checkpoint && e.deps.Checkpoints != nil {
			info, err := e.deps.Checkpoints.AutoCheckpoint(ctx, string(kind))
			if err != nil {
				return nil, fmt.Errorf("failed to checkpoint before batch: %w", err)
			}
			report.Checkpoint = info.ID
		}
	}

	logger.Info("Starting batch", "scope", scope)

	var final *Report
	err := common.WithRetry(ctx, func() error {
		attempt := *report
		attempt.Counts = make(map[model.Outcome]int, len(report.Counts))
		for k, v := range report.Counts {
			attempt.Counts[k] = v
		}
		attempt.Offending = make(map[model.Outcome][]int64)
		attempt.Items = nil

		if err := e.runOnce(ctx, &attempt, opts, revertsRun, body); err != nil {
			return err
		}
		final = &attempt
		return nil
	}, e.cfg.Retry)
	if err != nil {
		logger.Error("Batch failed", "error", err)
		return nil, err
	}

	final.Duration = time.Since(start)
	e.deps.Recorder.ObserveBatch(kind, opts.DryRun, final.Duration)
	for _, item := range final.Items {
		e.deps.Recorder.ObserveItem(kind, item.Outcome)
	}

	logger.Info("Batch finished",
		"items", len(final.Items),
		"applied", final.Counts[model.OutcomeApplied],
		"failed", final.Counts[model.OutcomeFailed],
		"duration", final.Duration.Round(time.Millisecond))
	return final, nil
}

func (e *Engine) runOnce(ctx context.Context, report *Report, opts Options, revertsRun *string,
	body func(ctx context.Context, b *batch) error) error {
	tx, err := e.deps.Store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	run := &model.Run{
		ID:         report.RunID,
		Kind:       report.Kind,
		Scope:      report.Scope,
		DryRun:     report.DryRun,
		StartedAt:  report.StartedAt,
		RevertsRun: revertsRun,
	}
	if !opts.DryRun {
		if err := tx.CreateRun(ctx, run); err != nil {
			return err
		}
	}

	b := &batch{tx: tx, report: report, run: run, opts: opts}
	if err := body(ctx, b); err != nil {
		return err
	}

	if opts.DryRun {
		return nil
	}
	run.Counts = report.Counts
	if err := tx.FinishRun(ctx, run); err != nil {
		return err
	}
	return tx.Commit()
}

// record appends a result to the report.
func (b *batch) record(item model.ItemResult) {
	b.report.Items = append(b.report.Items, item)
	b.report.Counts[item.Outcome]++
	if item.Outcome != model.OutcomeApplied {
		b.report.Offending[item.Outcome] = append(b.report.Offending[item.Outcome], item.ProductID)
	}
}

// apply runs a write for one item inside its own savepoint. A storage error
// rolls back only this item and is returned as itemErr; a retryable error
// or a broken savepoint aborts the batch through batchErr.
func (b *batch) apply(ctx context.Context, write func() error) (itemErr, batchErr error) {
	if b.opts.DryRun {
		return nil, nil
	}
	b.seq++
	name := fmt.Sprintf("item_%d", b.seq)
	if err := b.tx.Savepoint(ctx, name); err != nil {
		return nil, err
	}
	if err := write(); err != nil {
		if common.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if rbErr := b.tx.RollbackToSavepoint(ctx, name); rbErr != nil {
			return nil, fmt.Errorf("failed to roll back item: %w", rbErr)
		}
		return err, nil
	}
	if err := b.tx.ReleaseSavepoint(ctx, name); err != nil {
		return nil, err
	}
	return nil, nil
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
