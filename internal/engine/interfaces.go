package engine

import (
	"context"
	"time"

	"github.com/Veraticus/catalog-janitor/internal/classify"
	"github.com/Veraticus/catalog-janitor/internal/imagematch"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/storage"
)

// Classifier decides where a product belongs.
type Classifier interface {
	Classify(p model.Product) *classify.Decision
}

// ImageMatcher picks the best image for a product from a pool.
type ImageMatcher interface {
	Best(p model.Product, pool *imagematch.Pool) *imagematch.Match
}

// ImageSource lists the image files available for matching.
type ImageSource interface {
	Candidates(ctx context.Context) ([]imagematch.Candidate, error)
}

// Checkpointer snapshots the store before a batch writes to it.
type Checkpointer interface {
	AutoCheckpoint(ctx context.Context, prefix string) (*storage.CheckpointInfo, error)
}

// Recorder receives batch metrics.
type Recorder interface {
	ObserveItem(kind model.RunKind, outcome model.Outcome)
	ObserveScore(score int)
	ObserveBatch(kind model.RunKind, dryRun bool, elapsed time.Duration)
}

// ProgressFunc is called after each item of the first pass.
type ProgressFunc func(done, total int)

type nopRecorder struct{}

func (nopRecorder) ObserveItem(model.RunKind, model.Outcome)        {}
func (nopRecorder) ObserveScore(int)                                {}
func (nopRecorder) ObserveBatch(model.RunKind, bool, time.Duration) {}
