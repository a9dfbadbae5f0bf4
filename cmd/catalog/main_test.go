package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/catalog-janitor/internal/classify"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
	"github.com/Veraticus/catalog-janitor/internal/storage"
)

const productsCSV = `name,brand,price,stock
Durex Extra Safe Condoms 12,Durex,"1.250,00 Lekë",4
Mystery Item XYZ,,300,1
,NoName,3,1
`

// execute runs the CLI against dbPath and returns its stdout.
func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	settings = nil
	t.Setenv("HOME", t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--db", dbPath, "--log-level", "error"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func openStore(t *testing.T, dbPath string) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestVersion(t *testing.T) {
	out, err := execute(t, filepath.Join(t.TempDir(), "catalog.db"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog version dev")
}

func TestMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	out, err := execute(t, dbPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")

	categories, err := openStore(t, dbPath).GetCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, categories, len(classify.DefaultTaxonomy()))
}

func TestImportClassifyUndo(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	csvPath := writeFile(t, "products.csv", productsCSV)

	out, err := execute(t, dbPath, "import", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 of 3 records")
	assert.Contains(t, out, "Skipped 1 records")

	out, err = execute(t, dbPath, "report", "unclassified")
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 unclassified products")

	out, err = execute(t, dbPath, "classify", "--unclassified", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry Run")

	out, err = execute(t, dbPath, "classify", "--unclassified", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch Complete")
	assert.Contains(t, out, string(model.OutcomeNoMatch))
	assert.Contains(t, out, classify.CategoryPharmacy)

	store := openStore(t, dbPath)
	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	runID := runs[0].ID
	assert.Equal(t, model.RunKindClassify, runs[0].Kind)
	require.NoError(t, store.Close())

	out, err = execute(t, dbPath, "runs", "show", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "sexual-wellness-brands")

	out, err = execute(t, dbPath, "runs", "undo", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "Batch Complete")

	out, err = execute(t, dbPath, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "reverted")
	assert.Contains(t, out, string(model.RunKindUndo))

	store = openStore(t, dbPath)
	unclassified, err := store.CountProducts(ctx, service.ProductFilter{Unclassified: true})
	require.NoError(t, err)
	assert.Equal(t, 2, unclassified)
}

func TestClassify_RequiresBoundedSelection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	_, err := execute(t, dbPath, "classify", "--unclassified", "--limit", "999999")
	require.Error(t, err)
}

func TestImagesMatch(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	imageDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "durex-extra-safe-condoms-12.jpg"), []byte("img"), 0600))

	_, err := execute(t, dbPath, "import", writeFile(t, "products.csv", productsCSV))
	require.NoError(t, err)

	configPath := writeFile(t, "config.yaml", "images:\n  dir: "+imageDir+"\n  url_prefix: /images\n")
	out, err := execute(t, dbPath, "--config", configPath, "images", "match")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch Complete")

	store := openStore(t, dbPath)
	owners, err := store.GetImageOwners(ctx)
	require.NoError(t, err)
	assert.Contains(t, owners, "/images/durex-extra-safe-condoms-12.jpg")
}

func TestRulesValidate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	out, err := execute(t, dbPath, "rules", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "built-in rules")

	bad := writeFile(t, "rules.yaml", `
rules:
  - name: nowhere
    include: [foo]
    target: {category: garden}
`)
	_, err = execute(t, dbPath, "rules", "validate", bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, classify.ErrInvalidRuleSet)
}

func TestUnlock(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	out, err := execute(t, dbPath, "unlock")
	require.NoError(t, err)
	assert.Contains(t, out, "No batch lock held.")

	store := openStore(t, dbPath)
	require.NoError(t, store.AcquireBatchLock(ctx, "crashed"))
	require.NoError(t, store.Close())

	out, err = execute(t, dbPath, "unlock")
	require.NoError(t, err)
	assert.Contains(t, out, "crashed")
}

func TestCheckpointLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	out, err := execute(t, dbPath, "checkpoint", "create", "--tag", "before")
	require.NoError(t, err)
	assert.Contains(t, out, "Created checkpoint")

	out, err = execute(t, dbPath, "checkpoint", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "before")

	// No confirmation on stdin cancels.
	out, err = execute(t, dbPath, "checkpoint", "delete", "before")
	require.NoError(t, err)
	assert.Contains(t, out, "Deletion cancelled.")

	out, err = execute(t, dbPath, "checkpoint", "restore", "before", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored from checkpoint")

	out, err = execute(t, dbPath, "checkpoint", "delete", "before", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted checkpoint")
}

func TestReadYes(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "Yes\n", want: true},
		{input: "n\n", want: false},
		{input: "", want: false},
		{input: "y", want: true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, readYes(strings.NewReader(tt.input)), "input %q", tt.input)
	}
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}
