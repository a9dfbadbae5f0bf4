package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/catalog-janitor/internal/classify"
	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/engine"
	"github.com/Veraticus/catalog-janitor/internal/imagematch"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
	"github.com/Veraticus/catalog-janitor/internal/testutil"
	"github.com/Veraticus/catalog-janitor/internal/testutil/products"
	"github.com/Veraticus/catalog-janitor/internal/textnorm"
)

var (
	sexualWellness = model.Placement{Category: classify.CategoryPharmacy, Subcategory: "Mirëqenia seksuale"}
	vitamins       = model.Placement{Category: classify.CategorySupplements, Subcategory: "Vitamina dhe minerale"}
	omega3         = model.Placement{Category: classify.CategorySupplements, Subcategory: "Omega 3"}
)

func testRules(t *testing.T, rules ...model.CategoryRule) *classify.Classifier {
	t.Helper()
	if len(rules) == 0 {
		rules = []model.CategoryRule{
			{Name: "condoms", Include: []string{"condom"}, Target: sexualWellness, Priority: 50},
			{Name: "omega", Include: []string{"omega"}, Target: omega3, Priority: 50},
		}
	}
	rs, err := classify.NewRuleSet(classify.DefaultTaxonomy(), rules)
	require.NoError(t, err)
	return classify.NewClassifier(rs, textnorm.Normalizer{})
}

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Retry = service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return cfg
}

type staticImages []imagematch.Candidate

func (s staticImages) Candidates(context.Context) ([]imagematch.Candidate, error) {
	return s, nil
}

func images(files ...string) staticImages {
	out := make(staticImages, 0, len(files))
	for _, f := range files {
		out = append(out, imagematch.NewCandidate("/srv/images", f, "/images"))
	}
	return out
}

type countingRecorder struct {
	items   map[model.Outcome]int
	scores  []int
	batches int
	mu      sync.Mutex
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{items: make(map[model.Outcome]int)}
}

func (r *countingRecorder) ObserveItem(_ model.RunKind, o model.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[o]++
}

func (r *countingRecorder) ObserveScore(s int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, s)
}

func (r *countingRecorder) ObserveBatch(model.RunKind, bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
}

func newEngine(t *testing.T, store service.Storage, deps engine.Deps) *engine.Engine {
	t.Helper()
	deps.Store = store
	if deps.Classifier == nil {
		deps.Classifier = testRules(t)
	}
	if deps.Matcher == nil {
		deps.Matcher = imagematch.NewMatcher(imagematch.DefaultOptions())
	}
	e, err := engine.New(deps, testConfig())
	require.NoError(t, err)
	return e
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := engine.New(engine.Deps{}, engine.DefaultConfig())
	assert.Error(t, err)
}

func TestClassifyBatch_AppliesAndLogs(t *testing.T) {
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{Fixtures: []products.Fixture{products.FixturePharmacy}})
	rec := newCountingRecorder()
	e := newEngine(t, db.Storage, engine.Deps{Recorder: rec})
	ctx := context.Background()

	report, err := e.ClassifyBatch(ctx, engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Counts[model.OutcomeApplied])
	assert.Equal(t, 3, report.Counts[model.OutcomeNoMatch])
	assert.Equal(t, 0, report.Failed())
	assert.Len(t, report.Items, 5)
	assert.Equal(t, 2, report.Passes, "one pass moves, one confirms nothing else moves")
	assert.Len(t, report.Offending[model.OutcomeNoMatch], 3)

	durex := db.MustGetProduct(db.Products[0].ID)
	assert.True(t, durex.Placement().Equal(sexualWellness))
	nutriva := db.MustGetProduct(db.Products[2].ID)
	assert.True(t, nutriva.Placement().Equal(omega3))
	plaster := db.MustGetProduct(db.Products[4].ID)
	assert.Nil(t, plaster.Category)

	run, err := db.Storage.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunKindClassify, run.Kind)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, 2, run.Counts[model.OutcomeApplied])
	require.Len(t, run.Mutations, 2)
	assert.Equal(t, db.Products[0].ID, run.Mutations[0].ProductID)
	assert.Contains(t, run.Mutations[0].Reason, "condoms")
	assert.True(t, run.Mutations[0].OldPlacement.IsZero())

	lock, err := db.Storage.GetBatchLock(ctx)
	require.NoError(t, err)
	assert.Nil(t, lock, "lock must be released")

	assert.Equal(t, 1, rec.batches)
	assert.Equal(t, 2, rec.items[model.OutcomeApplied])
}

func TestClassifyBatch_SecondRunIsAlreadySet(t *testing.T) {
	db := testutil.SetupTestDBWithProducts(t, products.New("Durex Condoms Classic").Brand("Durex"))
	e := newEngine(t, db.Storage, engine.Deps{})
	ctx := context.Background()

	_, err := e.ClassifyBatch(ctx, engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)

	report, err := e.ClassifyBatch(ctx, engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts[model.OutcomeAlreadySet])
	assert.Equal(t, 0, report.Applied())
}

func TestClassifyBatch_DryRunWritesNothing(t *testing.T) {
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{Fixtures: []products.Fixture{products.FixturePharmacy}})
	e := newEngine(t, db.Storage, engine.Deps{})
	ctx := context.Background()

	report, err := e.ClassifyBatch(ctx, engine.Selection{IDs: db.IDs()}, engine.Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Applied())

	for _, id := range db.IDs() {
		assert.Nil(t, db.MustGetProduct(id).Category)
	}
	runs, err := db.Storage.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestClassifyBatch_RepeatsPassesUntilSettled(t *testing.T) {
	classifier := testRules(t,
		model.CategoryRule{Name: "supplements", Include: []string{"omega"}, Target: vitamins, Priority: 10},
		model.CategoryRule{Name: "vitamins-to-omega", When: &vitamins, Include: []string{"omega"}, Target: omega3, Priority: 20},
		model.CategoryRule{Name: "omega-stays", When: &omega3, Include: []string{"omega"}, Target: omega3, Priority: 30},
	)
	db := testutil.SetupTestDBWithProducts(t, products.New("Nutriva Omega 3 TG").Brand("Nutriva"))
	e := newEngine(t, db.Storage, engine.Deps{Classifier: classifier})
	ctx := context.Background()

	report, err := e.ClassifyBatch(ctx, engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Passes)
	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, model.OutcomeApplied, item.Outcome)
	assert.True(t, item.Old.IsZero())
	assert.True(t, item.New.Equal(omega3))
	assert.Equal(t, "vitamins-to-omega", item.Rule)

	assert.True(t, db.MustGetProduct(db.Products[0].ID).Placement().Equal(omega3))

	mutations, err := db.Storage.GetMutations(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, mutations, 2)
	assert.True(t, mutations[0].NewPlacement.Equal(vitamins))
	assert.True(t, mutations[1].OldPlacement.Equal(vitamins))
}

func TestClassifyBatch_StopsAtMaxPasses(t *testing.T) {
	classifier := testRules(t,
		model.CategoryRule{Name: "to-vitamins", Include: []string{"omega"}, Target: vitamins, Priority: 10},
		model.CategoryRule{Name: "to-omega", When: &vitamins, Include: []string{"omega"}, Target: omega3, Priority: 20},
	)
	db := testutil.SetupTestDBWithProducts(t, products.New("Nutriva Omega 3 TG"))
	e := newEngine(t, db.Storage, engine.Deps{Classifier: classifier})

	report, err := e.ClassifyBatch(context.Background(), engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultConfig().MaxPasses, report.Passes)
	assert.Equal(t, 1, report.Applied())
}

func TestClassifyBatch_Selection(t *testing.T) {
	db := testutil.SetupTestDBWithProducts(t,
		products.New("Durex Condoms").In(classify.CategoryPharmacy, ""),
		products.New("Control Condoms"),
		products.New("Omega Kids").In(classify.CategorySupplements, "Omega 3"),
	)
	e := newEngine(t, db.Storage, engine.Deps{})
	ctx := context.Background()

	tests := []struct {
		wantErr   error
		name      string
		sel       engine.Selection
		wantItems int
	}{
		{name: "category scope", sel: engine.Selection{Category: classify.CategoryPharmacy}, wantItems: 1},
		{name: "unclassified", sel: engine.Selection{Unclassified: true}, wantItems: 1},
		{name: "capped by limit", sel: engine.Selection{Limit: 2}, wantItems: 2},
		{name: "after id", sel: engine.Selection{AfterID: db.Products[1].ID}, wantItems: 1},
		{name: "limit above maximum", sel: engine.Selection{Limit: 1_000_000}, wantErr: common.ErrLimitExceeded},
		{name: "more ids than limit", sel: engine.Selection{IDs: []int64{1, 2, 3}, Limit: 2}, wantErr: common.ErrLimitExceeded},
		{name: "ids and scope", sel: engine.Selection{IDs: []int64{1}, Category: "x"}, wantErr: common.ErrInvalidConfig},
		{name: "subcategory without category", sel: engine.Selection{Subcategory: "Omega 3"}, wantErr: common.ErrInvalidConfig},
		{name: "bad id", sel: engine.Selection{IDs: []int64{-4}}, wantErr: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := e.ClassifyBatch(ctx, tt.sel, engine.Options{DryRun: true})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, report.Items, tt.wantItems)
		})
	}
}

func TestClassifyBatch_MissingIDsAreInvalid(t *testing.T) {
	db := testutil.SetupTestDBWithProducts(t, products.New("Durex Condoms"))
	e := newEngine(t, db.Storage, engine.Deps{})

	report, err := e.ClassifyBatch(context.Background(), engine.Selection{IDs: []int64{db.Products[0].ID, 999}}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied())
	assert.Equal(t, []int64{999}, report.Offending[model.OutcomeInvalid])
}

func TestClassifyBatch_BlankTextIsInvalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	blank := db.InsertRawProduct("   ")
	e := newEngine(t, db.Storage, engine.Deps{})
	ctx := context.Background()

	report, err := e.ClassifyBatch(ctx, engine.Selection{IDs: []int64{blank}}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts[model.OutcomeInvalid])
	assert.Equal(t, []int64{blank}, report.Offending[model.OutcomeInvalid])
	require.Len(t, report.Items, 1)
	assert.NotEmpty(t, report.Items[0].Error)

	p := db.MustGetProduct(blank)
	assert.Equal(t, "   ", p.Name)
	assert.Nil(t, p.Category)

	mutations, err := db.Storage.GetMutations(ctx, report.RunID)
	require.NoError(t, err)
	assert.Empty(t, mutations)
}

func TestClassifyBatch_RejectedWhileLocked(t *testing.T) {
	db := testutil.SetupTestDBWithProducts(t, products.New("Durex Condoms"))
	e := newEngine(t, db.Storage, engine.Deps{})
	ctx := context.Background()

	require.NoError(t, db.Storage.AcquireBatchLock(ctx, "other-process"))
	_, err := e.ClassifyBatch(ctx, engine.Selection{IDs: db.IDs()}, engine.Options{})
	assert.ErrorIs(t, err, common.ErrBatchLocked)

	report, err := e.ClassifyBatch(ctx, engine.Selection{IDs: db.IDs()}, engine.Options{DryRun: true})
	require.NoError(t, err, "dry runs do not take the lock")
	assert.Equal(t, 1, report.Applied())
}

func TestClassifyBatch_Checkpoint(t *testing.T) {
	db := testutil.SetupTestDBWithProducts(t, products.New("Durex Condoms"))
	cm, err := db.Storage.NewCheckpointManager()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Checkpoint = true
	e, err := engine.New(engine.Deps{Store: db.Storage, Classifier: testRules(t), Checkpoints: cm}, cfg)
	require.NoError(t, err)

	report, err := e.ClassifyBatch(context.Background(), engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, report.Checkpoint)

	cps, err := cm.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, report.Checkpoint, cps[0].ID)
	assert.True(t, cps[0].IsAuto)
}

// flakyStore fails chosen writes to exercise per-item rollback and batch
// retries.
type flakyStore struct {
	service.Storage
	failTarget    *model.Placement
	failPlacement int64
	busyBegins    int
	begins        int
}

func (s *flakyStore) BeginTx(ctx context.Context) (service.Transaction, error) {
	s.begins++
	if s.begins <= s.busyBegins {
		return nil, common.ErrStoreBusy
	}
	tx, err := s.Storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTx{Transaction: tx, failPlacement: s.failPlacement, failTarget: s.failTarget}, nil
}

type flakyTx struct {
	service.Transaction
	failTarget    *model.Placement
	failPlacement int64
}

func (tx *flakyTx) UpdatePlacement(ctx context.Context, id int64, p model.Placement) error {
	if id == tx.failPlacement || (tx.failTarget != nil && tx.failTarget.Equal(p)) {
		return errors.New("disk on fire")
	}
	return tx.Transaction.UpdatePlacement(ctx, id, p)
}

func TestClassifyBatch_ItemFailureRollsBackOnlyThatItem(t *testing.T) {
	db := testutil.SetupTestDBWithProducts(t, products.New("Durex Condoms"), products.New("Control Condoms"))
	store := &flakyStore{Storage: db.Storage, failPlacement: db.Products[0].ID}
	e := newEngine(t, store, engine.Deps{})

	report, err := e.ClassifyBatch(context.Background(), engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Applied())
	assert.Equal(t, []int64{db.Products[0].ID}, report.Offending[model.OutcomeFailed])
	assert.Contains(t, report.Items[0].Error, "disk on fire")

	assert.Nil(t, db.MustGetProduct(db.Products[0].ID).Category)
	assert.True(t, db.MustGetProduct(db.Products[1].ID).Placement().Equal(sexualWellness))

	mutations, err := db.Storage.GetMutations(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Len(t, mutations, 1)
}

func TestClassifyBatch_LaterPassFailureKeepsEarlierMove(t *testing.T) {
	classifier := testRules(t,
		model.CategoryRule{Name: "supplements", Include: []string{"omega"}, Target: vitamins, Priority: 10},
		model.CategoryRule{Name: "vitamins-to-omega", When: &vitamins, Include: []string{"omega"}, Target: omega3, Priority: 20},
	)
	db := testutil.SetupTestDBWithProducts(t, products.New("Nutriva Omega 3 TG"))
	store := &flakyStore{Storage: db.Storage, failTarget: &omega3}
	e := newEngine(t, store, engine.Deps{Classifier: classifier})
	ctx := context.Background()

	report, err := e.ClassifyBatch(ctx, engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied())
	assert.Equal(t, 0, report.Failed())

	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, model.OutcomeApplied, item.Outcome)
	assert.True(t, item.New.Equal(vitamins))
	assert.Equal(t, "supplements", item.Rule)
	assert.Contains(t, item.Error, "pass 2")
	assert.Contains(t, item.Error, "disk on fire")

	assert.True(t, db.MustGetProduct(db.Products[0].ID).Placement().Equal(vitamins))
	mutations, err := db.Storage.GetMutations(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.True(t, mutations[0].NewPlacement.Equal(vitamins))
}

func TestClassifyBatch_RetriesBusyStore(t *testing.T) {
	db := testutil.SetupTestDBWithProducts(t, products.New("Durex Condoms"))
	store := &flakyStore{Storage: db.Storage, busyBegins: 2}
	e := newEngine(t, store, engine.Deps{})

	report, err := e.ClassifyBatch(context.Background(), engine.Selection{IDs: db.IDs()}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, store.begins)
	assert.Equal(t, 1, report.Applied())
	assert.Len(t, report.Items, 1, "items from failed attempts are not kept")
}

func TestClassifyBatch_GivesUpOnPersistentBusy(t *testing.T) {
	db := testutil.SetupTestDBWithProducts(t, products.New("Durex Condoms"))
	store := &flakyStore{Storage: db.Storage, busyBegins: 10}
	e := newEngine(t, store, engine.Deps{})

	_, err := e.ClassifyBatch(context.Background(), engine.Selection{IDs: db.IDs()}, engine.Options{})
	assert.ErrorIs(t, err, common.ErrMaxRetries)
	lock, lockErr := db.Storage.GetBatchLock(context.Background())
	require.NoError(t, lockErr)
	assert.Nil(t, lock)
}

func TestClassifyBatch_Progress(t *testing.T) {
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{Fixtures: []products.Fixture{products.FixturePharmacy}})
	e := newEngine(t, db.Storage, engine.Deps{})

	var calls [][2]int
	_, err := e.ClassifyBatch(context.Background(), engine.Selection{IDs: db.IDs()}, engine.Options{
		DryRun:   true,
		Progress: func(done, total int) { calls = append(calls, [2]int{done, total}) },
	})
	require.NoError(t, err)
	require.Len(t, calls, 5)
	assert.Equal(t, [2]int{5, 5}, calls[4])
}

