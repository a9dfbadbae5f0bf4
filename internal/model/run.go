package model

import "time"

// RunKind identifies what a batch run mutates.
type RunKind string

// Run kinds.
const (
	RunKindClassify RunKind = "classify"
	RunKindImages   RunKind = "images"
	RunKindUndo     RunKind = "undo"
)

// Outcome is the terminal state of one item in a batch.
type Outcome string

// Outcome constants.
const (
	OutcomeApplied    Outcome = "applied"
	OutcomeNoMatch    Outcome = "skipped-no-match"
	OutcomeAlreadySet Outcome = "skipped-already-set"
	OutcomeInvalid    Outcome = "skipped-invalid"
	OutcomeConflict   Outcome = "skipped-conflict"
	OutcomeFailed     Outcome = "failed"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{
	OutcomeApplied, OutcomeNoMatch, OutcomeAlreadySet,
	OutcomeInvalid, OutcomeConflict, OutcomeFailed,
}

// Run records one batch job.
type Run struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	RevertedAt *time.Time      `json:"reverted_at,omitempty"`
	Counts     map[Outcome]int `json:"counts"`
	RevertsRun *string         `json:"reverts_run,omitempty"`
	ID         string          `json:"id"`
	Kind       RunKind         `json:"kind"`
	Scope      string          `json:"scope"`
	Mutations  []Mutation      `json:"mutations,omitempty"`
	DryRun     bool            `json:"dry_run"`
}

// MutationKind names the field group a mutation changed.
type MutationKind string

// Mutation kinds.
const (
	MutationCategory MutationKind = "category"
	MutationImage    MutationKind = "image"
)

// Mutation is one reversible change written by a batch run.
type Mutation struct {
	CreatedAt    time.Time      `json:"created_at"`
	OldPlacement *Placement     `json:"old_placement,omitempty"`
	NewPlacement *Placement     `json:"new_placement,omitempty"`
	RunID        string         `json:"run_id"`
	Kind         MutationKind   `json:"kind"`
	NewImageURL  string         `json:"new_image_url,omitempty"`
	Reason       string         `json:"reason"`
	OldImages    []ProductImage `json:"old_images,omitempty"`
	ID           int64          `json:"id"`
	ProductID    int64          `json:"product_id"`
	Score        int            `json:"score,omitempty"`
}

// ItemResult reports what happened to one product in a batch.
type ItemResult struct {
	Old       *Placement `json:"old,omitempty"`
	New       *Placement `json:"new,omitempty"`
	Outcome   Outcome    `json:"outcome"`
	Rule      string     `json:"rule,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	Error     string     `json:"error,omitempty"`
	ProductID int64      `json:"product_id"`
	Score     int        `json:"score,omitempty"`
}
