package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-compare/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testStoreProduct(name string) *model.Product {
	return &model.Product{
		Name:   name,
		URLs:   []string{"https://carrier.example.com/" + name + ".pdf"},
		Status: model.ProductStatusProcessed,
		Documents: []model.DocumentInfo{
			{
				Name:      name + ".pdf",
				SourceURL: "https://carrier.example.com/" + name + ".pdf",
				Pages: []model.PageText{
					{Index: 0, Markdown: "# Declarations\n\nCoverage A: $500,000"},
					{Index: 1, Markdown: "# Exclusions\n\nFlood is excluded."},
				},
			},
		},
	}
}

// --- Products ---

func TestSQLite_SaveProduct_And_GetProduct(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testStoreProduct("acme-ho3")
	require.NoError(t, st.SaveProduct(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.IngestedAt.IsZero())

	fetched, err := st.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme-ho3", fetched.Name)
	require.Len(t, fetched.Documents, 1)
	assert.Equal(t, 2, fetched.PageCount())
}

func TestSQLite_SaveProduct_SameNameReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p1 := testStoreProduct("acme-ho3")
	require.NoError(t, st.SaveProduct(ctx, p1))

	p2 := testStoreProduct("acme-ho3")
	p2.Documents[0].Pages = p2.Documents[0].Pages[:1]
	require.NoError(t, st.SaveProduct(ctx, p2))

	products, err := st.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, p2.ID, products[0].ID)
	assert.Equal(t, 1, products[0].PageCount())
}

func TestSQLite_GetProduct_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetProduct(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListProducts_OrderedByName(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveProduct(ctx, testStoreProduct("zeta-dp3")))
	require.NoError(t, st.SaveProduct(ctx, testStoreProduct("acme-ho3")))

	products, err := st.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "acme-ho3", products[0].Name)
	assert.Equal(t, "zeta-dp3", products[1].Name)
}

func TestSQLite_DeleteProduct(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testStoreProduct("acme-ho3")
	require.NoError(t, st.SaveProduct(ctx, p))
	require.NoError(t, st.DeleteProduct(ctx, p.ID))

	_, err := st.GetProduct(ctx, p.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.DeleteProduct(ctx, p.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Question configuration ---

func TestSQLite_QuestionConfig_SaveAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	qc := &model.QuestionConfig{
		Categories: []string{"Fire Damage", "Water Damage"},
		Questions: []model.Question{
			{ID: "q001", Text: "What is the dwelling limit?", AppliesTo: []string{"Fire Damage"}},
		},
	}
	require.NoError(t, st.SaveQuestionConfig(ctx, qc))

	loaded, err := st.LoadQuestionConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, qc.Categories, loaded.Categories)
	require.Len(t, loaded.Questions, 1)
	assert.Equal(t, "q001", loaded.Questions[0].ID)
}

func TestSQLite_QuestionConfig_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveQuestionConfig(ctx, &model.QuestionConfig{
		Categories: []string{"Fire Damage"},
	}))
	require.NoError(t, st.SaveQuestionConfig(ctx, &model.QuestionConfig{
		Categories: []string{"Liability"},
	}))

	loaded, err := st.LoadQuestionConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []string{"Liability"}, loaded.Categories)
}

func TestSQLite_QuestionConfig_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	loaded, err := st.LoadQuestionConfig(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

// --- Extractions ---

func TestSQLite_Extractions_SaveAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	extractions := []model.Extraction{
		{
			ProductName:  "acme-ho3",
			QuestionID:   "q001",
			QuestionText: "What is the dwelling limit?",
			Category:     "Fire Damage",
			Answer:       "$500,000",
			Status:       model.ExtractionStatusRaw,
		},
	}
	require.NoError(t, st.SaveExtractions(ctx, "acme-ho3", extractions))

	loaded, err := st.LoadExtractions(ctx, "acme-ho3")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "$500,000", loaded[0].Answer)
}

func TestSQLite_Extractions_OverwriteSnapshot(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := []model.Extraction{{ProductName: "acme-ho3", QuestionID: "q001", Answer: "$500,000"}}
	second := []model.Extraction{{ProductName: "acme-ho3", QuestionID: "q001", Answer: "$750,000"}}

	require.NoError(t, st.SaveExtractions(ctx, "acme-ho3", first))
	require.NoError(t, st.SaveExtractions(ctx, "acme-ho3", second))

	loaded, err := st.LoadExtractions(ctx, "acme-ho3")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "$750,000", loaded[0].Answer)
}

func TestSQLite_Extractions_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	loaded, err := st.LoadExtractions(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLite_ListExtractions_FlattensAllProducts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveExtractions(ctx, "zeta-dp3", []model.Extraction{
		{ProductName: "zeta-dp3", QuestionID: "q001", Answer: "Not Found"},
	}))
	require.NoError(t, st.SaveExtractions(ctx, "acme-ho3", []model.Extraction{
		{ProductName: "acme-ho3", QuestionID: "q001", Answer: "$500,000"},
		{ProductName: "acme-ho3", QuestionID: "q002", Answer: "$25,000"},
	}))

	all, err := st.ListExtractions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Ordered by product name.
	assert.Equal(t, "acme-ho3", all[0].ProductName)
	assert.Equal(t, "zeta-dp3", all[2].ProductName)
}

func TestSQLite_DeleteExtractions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveExtractions(ctx, "acme-ho3", []model.Extraction{
		{ProductName: "acme-ho3", QuestionID: "q001", Answer: "$500,000"},
	}))
	require.NoError(t, st.DeleteExtractions(ctx, "acme-ho3"))

	loaded, err := st.LoadExtractions(ctx, "acme-ho3")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

// --- Analyses ---

func TestSQLite_Analysis_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := &model.AnalysisResult{
		Prompt:      "Compare dwelling limits across carriers.",
		Explanation: "Acme offers the highest dwelling limit.",
		Plots:       []model.Plot{{Title: "Visualization 1", ImageBase64: "aW1n"}},
	}
	require.NoError(t, st.SaveAnalysis(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	fetched, err := st.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Prompt, fetched.Prompt)
	require.Len(t, fetched.Plots, 1)
	assert.Equal(t, "aW1n", fetched.Plots[0].ImageBase64)
}

func TestSQLite_Analysis_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetAnalysis(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListAnalyses_NewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	older := &model.AnalysisResult{Prompt: "older", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &model.AnalysisResult{Prompt: "newer", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.SaveAnalysis(ctx, older))
	require.NoError(t, st.SaveAnalysis(ctx, newer))

	analyses, err := st.ListAnalyses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, "newer", analyses[0].Prompt)
	assert.Equal(t, "older", analyses[1].Prompt)
}

func TestSQLite_ListAnalyses_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.SaveAnalysis(ctx, &model.AnalysisResult{
			Prompt:    "prompt",
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
		}))
	}

	analyses, err := st.ListAnalyses(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, analyses, 2)
}

func TestSQLite_DeleteAnalysis(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := &model.AnalysisResult{Prompt: "prompt"}
	require.NoError(t, st.SaveAnalysis(ctx, a))
	require.NoError(t, st.DeleteAnalysis(ctx, a.ID))

	err := st.DeleteAnalysis(ctx, a.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.Migrate(context.Background())
	require.NoError(t, err)
}
