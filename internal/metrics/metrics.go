// Package metrics exposes batch and catalog health metrics to Prometheus.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

const namespace = "catalog"

// Collector records batch outcomes and, on Refresh, catalog health gauges.
// It satisfies the engine's recorder interface.
type Collector struct {
	store service.Catalog

	items    *prometheus.CounterVec
	batches  *prometheus.HistogramVec
	scores   prometheus.Histogram
	products prometheus.Gauge

	unclassified prometheus.Gauge
	unimaged     prometheus.Gauge
}

// New creates a collector. store may be nil when only batch metrics are
// wanted.
func New(store service.Catalog) *Collector {
	c := &Collector{store: store}

	c.items = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_items_total",
		Help:      "Batch items processed, by run kind and outcome",
	}, []string{"kind", "outcome"})

	c.batches = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of batch runs",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"kind", "dry_run"})

	c.scores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "image_match_score",
		Help:      "Scores of accepted image matches",
		Buckets:   []float64{40, 45, 55, 60, 70, 75, 85, 90, 100},
	})

	c.products = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "products",
		Help:      "Products in the catalog",
	})
	c.unclassified = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "products_unclassified",
		Help:      "Products without a category",
	})
	c.unimaged = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "products_unimaged",
		Help:      "Products without a primary image",
	})

	return c
}

// Register adds every metric to reg.
func (c *Collector) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.items,
		c.batches,
		c.scores,
		c.products,
		c.unclassified,
		c.unimaged,
	)
}

// ObserveItem counts one batch item.
func (c *Collector) ObserveItem(kind model.RunKind, outcome model.Outcome) {
	c.items.WithLabelValues(string(kind), string(outcome)).Inc()
}

// ObserveScore records an accepted image match score.
func (c *Collector) ObserveScore(score int) {
	c.scores.Observe(float64(score))
}

// ObserveBatch records how long a batch took.
func (c *Collector) ObserveBatch(kind model.RunKind, dryRun bool, elapsed time.Duration) {
	c.batches.WithLabelValues(string(kind), strconv.FormatBool(dryRun)).Observe(elapsed.Seconds())
}

// Refresh recomputes the catalog gauges (call on each scrape or before
// writing a textfile).
func (c *Collector) Refresh(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	total, err := c.store.CountProducts(ctx, service.ProductFilter{})
	if err != nil {
		return err
	}
	unclassified, err := c.store.CountProducts(ctx, service.ProductFilter{Unclassified: true})
	if err != nil {
		return err
	}
	unimaged, err := c.store.CountProducts(ctx, service.ProductFilter{MissingPrimaryImage: true})
	if err != nil {
		return err
	}

	c.products.Set(float64(total))
	c.unclassified.Set(float64(unclassified))
	c.unimaged.Set(float64(unimaged))
	return nil
}

// NewRegistry returns a fresh registry holding only the collector.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	c.Register(reg)
	return reg
}

// WriteTextfile writes the gathered metrics in the node-exporter textfile
// format, creating the directory if needed.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
