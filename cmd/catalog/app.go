package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Veraticus/catalog-janitor/internal/classify"
	"github.com/Veraticus/catalog-janitor/internal/config"
	"github.com/Veraticus/catalog-janitor/internal/engine"
	"github.com/Veraticus/catalog-janitor/internal/imagematch"
	"github.com/Veraticus/catalog-janitor/internal/metrics"
	"github.com/Veraticus/catalog-janitor/internal/storage"
	"github.com/Veraticus/catalog-janitor/internal/textnorm"
)

// app bundles the collaborators a command needs.
type app struct {
	cfg      *config.Config
	store    *storage.SQLiteStorage
	metrics  *metrics.Collector
	registry *prometheus.Registry
}

// openApp opens and migrates the configured store.
func openApp(ctx context.Context) (*app, error) {
	cfg := settings
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	collector := metrics.New(store)
	return &app{
		cfg:      cfg,
		store:    store,
		metrics:  collector,
		registry: metrics.NewRegistry(collector),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// rules loads the configured rule set, or the built-in one.
func (a *app) rules() (*classify.RuleSet, error) {
	rs, err := classify.Load(a.cfg.Rules.Path)
	if err != nil {
		return nil, err
	}
	slog.Debug("Loaded rule set", "path", a.cfg.Rules.Path, "rules", len(rs.Rules))
	return rs, nil
}

func (a *app) normalizer() textnorm.Normalizer {
	return textnorm.Normalizer{FoldDiacritics: a.cfg.Text.FoldDiacritics}
}

// engine wires the batch engine from configuration.
func (a *app) engine() (*engine.Engine, error) {
	rs, err := a.rules()
	if err != nil {
		return nil, err
	}

	checkpoints, err := a.store.NewCheckpointManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
	}

	matchOpts := imagematch.DefaultOptions()
	matchOpts.Normalizer = a.normalizer()
	matchOpts.Threshold = a.cfg.Images.Threshold
	matchOpts.BrandWordMinLength = a.cfg.Text.MinTokenLength
	matchOpts.MinContainLength = a.cfg.Images.MinContainLength

	cfg := engine.DefaultConfig()
	cfg.DefaultLimit = a.cfg.Batch.Limit
	cfg.MaxLimit = a.cfg.Batch.MaxLimit
	cfg.MaxPasses = a.cfg.Batch.MaxPasses
	cfg.Checkpoint = a.cfg.Batch.Checkpoint

	return engine.New(engine.Deps{
		Store:       a.store,
		Classifier:  classify.NewClassifier(rs, a.normalizer()),
		Matcher:     imagematch.NewMatcher(matchOpts),
		Images:      imagematch.Dir{Root: a.cfg.Images.Dir, URLPrefix: a.cfg.Images.URLPrefix},
		Checkpoints: checkpoints,
		Recorder:    a.metrics,
	}, cfg)
}

// flushMetrics writes the metrics textfile when one is configured.
func (a *app) flushMetrics(ctx context.Context) {
	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := a.metrics.Refresh(ctx); err != nil {
		slog.Warn("Failed to refresh catalog metrics", "error", err)
	}
	if err := metrics.WriteTextfile(path, a.registry); err != nil {
		slog.Warn("Failed to write metrics textfile", "path", path, "error", err)
		return
	}
	slog.Debug("Wrote metrics textfile", "path", path)
}
