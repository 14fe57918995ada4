package pipeline

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-compare/internal/model"
)

func extractByID(t *testing.T, extractions []model.Extraction, category, id string) model.Extraction {
	t.Helper()
	for _, e := range extractions {
		if e.QuestionID == id && e.Category == category {
			return e
		}
	}
	t.Fatalf("extraction %s/%s not found", category, id)
	return model.Extraction{}
}

func TestExtract(t *testing.T) {
	cfg := testConfig()
	cfg.Extract.Concurrency = 1

	// One response per category, in category order.
	fc := &fakeCompletion{responses: []string{
		`{"q001": "Yes", "q002": "5000 EUR"}`,
		`{"q001": "No", "q003": "200 EUR deductible"}`,
	}}
	p := New(cfg, &fakeClients{completion: fc}, &fakeFetcher{})

	extractions, err := p.Extract(context.Background(), testProduct("Acme", "policy terms"), testQuestionConfig())
	require.NoError(t, err)

	// q001 applies to both categories, q002 and q003 to one each.
	require.Len(t, extractions, 4)
	assert.Equal(t, "Yes", extractByID(t, extractions, "Fire Damage", "q001").Answer)
	assert.Equal(t, "5000 EUR", extractByID(t, extractions, "Fire Damage", "q002").Answer)
	assert.Equal(t, "No", extractByID(t, extractions, "Water Damage", "q001").Answer)
	assert.Equal(t, "200 EUR deductible", extractByID(t, extractions, "Water Damage", "q003").Answer)
	for _, e := range extractions {
		assert.Equal(t, model.ExtractionStatusRaw, e.Status)
		assert.Equal(t, "Acme", e.ProductName)
	}

	require.Len(t, fc.requests, 2)
	assert.Contains(t, fc.requests[0].System, "Fire Damage")
	assert.Contains(t, fc.requests[0].User, "q002")
	assert.True(t, fc.requests[0].JSONMode)
}

func TestExtractMissingAnswerDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Extract.Concurrency = 1

	fc := &fakeCompletion{responses: []string{
		`{"q001": "Yes"}`,
		`{"q001": "Yes", "q003": ""}`,
	}}
	p := New(cfg, &fakeClients{completion: fc}, &fakeFetcher{})

	extractions, err := p.Extract(context.Background(), testProduct("Acme", "terms"), testQuestionConfig())
	require.NoError(t, err)

	assert.Equal(t, "Not Found", extractByID(t, extractions, "Fire Damage", "q002").Answer)
	assert.Equal(t, "", extractByID(t, extractions, "Water Damage", "q003").Answer)
}

func TestExtractCategoryFailureIsolated(t *testing.T) {
	cfg := testConfig()
	cfg.Extract.Concurrency = 1

	fc := &fakeCompletion{responses: []string{
		"ERR:service unavailable",
		`{"q001": "Yes", "q003": "None"}`,
	}}
	p := New(cfg, &fakeClients{completion: fc}, &fakeFetcher{})

	extractions, err := p.Extract(context.Background(), testProduct("Acme", "terms"), testQuestionConfig())
	require.NoError(t, err)
	require.Len(t, extractions, 4)

	failed := extractByID(t, extractions, "Fire Damage", "q001")
	assert.Equal(t, model.ExtractionStatusErrorLLM, failed.Status)
	assert.Contains(t, failed.Answer, "Error:")

	ok := extractByID(t, extractions, "Water Damage", "q001")
	assert.Equal(t, model.ExtractionStatusRaw, ok.Status)
	assert.Equal(t, "Yes", ok.Answer)
}

func TestExtractParseFailureStatus(t *testing.T) {
	cfg := testConfig()
	cfg.Extract.Concurrency = 1

	fc := &fakeCompletion{responses: []string{
		"this is not json",
		`{"q001": "Yes", "q003": "None"}`,
	}}
	p := New(cfg, &fakeClients{completion: fc}, &fakeFetcher{})

	extractions, err := p.Extract(context.Background(), testProduct("Acme", "terms"), testQuestionConfig())
	require.NoError(t, err)

	failed := extractByID(t, extractions, "Fire Damage", "q001")
	assert.Equal(t, model.ExtractionStatusErrorParsing, failed.Status)
}

func TestExtractValidation(t *testing.T) {
	p := New(testConfig(), &fakeClients{completion: &fakeCompletion{}}, &fakeFetcher{})

	_, err := p.Extract(context.Background(), &model.Product{Name: "empty"}, testQuestionConfig())
	assert.Error(t, err)

	_, err = p.Extract(context.Background(), testProduct("Acme", "terms"), &model.QuestionConfig{})
	assert.Error(t, err)
}

func TestMergeExtractionsSecondWins(t *testing.T) {
	first := []model.Extraction{
		{ProductName: "Acme", QuestionID: "q001", Category: "Fire Damage", Answer: "Yes", Status: model.ExtractionStatusRaw},
		{ProductName: "Acme", QuestionID: "q002", Category: "Fire Damage", Answer: "5000 EUR", Status: model.ExtractionStatusRaw},
	}
	second := []model.Extraction{
		{ProductName: "Acme", QuestionID: "q001", Category: "Fire Damage", Answer: "No", Status: model.ExtractionStatusRaw},
	}

	merged := MergeExtractions(first, second)
	require.Len(t, merged, 2)
	assert.Equal(t, "No", extractByID(t, merged, "Fire Damage", "q001").Answer)
	assert.Equal(t, "5000 EUR", extractByID(t, merged, "Fire Damage", "q002").Answer)

	// Merging the same updates again changes nothing.
	again := MergeExtractions(merged, second)
	assert.Equal(t, merged, again)
}

func TestMergeExtractionsKeepsOtherProducts(t *testing.T) {
	existing := []model.Extraction{
		{ProductName: "Acme", QuestionID: "q001", Category: "Fire Damage", Answer: "Yes"},
		{ProductName: "Beta", QuestionID: "q001", Category: "Fire Damage", Answer: "No"},
	}
	updates := []model.Extraction{
		{ProductName: "Acme", QuestionID: "q001", Category: "Fire Damage", Answer: "Partial"},
	}

	merged := MergeExtractions(existing, updates)
	require.Len(t, merged, 2)

	var products []string
	for _, e := range merged {
		products = append(products, e.ProductName)
	}
	sort.Strings(products)
	assert.Equal(t, []string{"Acme", "Beta"}, products)
	assert.Equal(t, "No", merged[1].Answer)
}
