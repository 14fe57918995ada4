package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-compare/internal/model"
)

func TestSuggest(t *testing.T) {
	fc := &fakeCompletion{responses: []string{
		`{"categories": ["fire damage", "theft/burglary", "Fire Damage", "  water damage  "]}`,
		`{"questions": [
			{"text": "Is this category covered under the insurance?", "applies_to_categories": ["Fire Damage", "Water Damage"]},
			{"text": "What is the maximum coverage amount?", "applies_to_categories": ["fire damage"]},
			{"text": "", "applies_to_categories": ["Fire Damage"]},
			{"text": "Orphan question", "applies_to_categories": ["Unknown Category"]}
		]}`,
	}}
	p := New(testConfig(), &fakeClients{completion: fc}, &fakeFetcher{})

	cfg, err := p.Suggest(context.Background(), []*model.Product{testProduct("acme", "fire and water terms")})
	require.NoError(t, err)

	// Normalized: deduped, "/" replaced, title case, sorted.
	assert.Equal(t, []string{"Fire Damage", "Theft And Burglary", "Water Damage"}, cfg.Categories)

	// Blank and orphan questions dropped; ids padded and sequential.
	require.Len(t, cfg.Questions, 2)
	assert.Equal(t, "q001", cfg.Questions[0].ID)
	assert.Equal(t, []string{"Fire Damage", "Water Damage"}, cfg.Questions[0].AppliesTo)
	assert.Equal(t, "q002", cfg.Questions[1].ID)
	assert.Equal(t, []string{"Fire Damage"}, cfg.Questions[1].AppliesTo)

	// Two calls: categories then questions, both in JSON mode with corpus.
	require.Len(t, fc.requests, 2)
	assert.True(t, fc.requests[0].JSONMode)
	assert.Contains(t, fc.requests[0].User, "fire and water terms")
	assert.Contains(t, fc.requests[1].User, "Fire Damage")
}

func TestSuggestMalformedCategories(t *testing.T) {
	fc := &fakeCompletion{responses: []string{`not json at all`}}
	p := New(testConfig(), &fakeClients{completion: fc}, &fakeFetcher{})

	_, err := p.Suggest(context.Background(), []*model.Product{testProduct("acme", "terms")})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSuggestionParse)
}

func TestSuggestNoUsableQuestions(t *testing.T) {
	fc := &fakeCompletion{responses: []string{
		`{"categories": ["Fire Damage"]}`,
		`{"questions": []}`,
	}}
	p := New(testConfig(), &fakeClients{completion: fc}, &fakeFetcher{})

	_, err := p.Suggest(context.Background(), []*model.Product{testProduct("acme", "terms")})
	assert.ErrorIs(t, err, model.ErrSuggestionParse)
}

func TestSuggestNoProducts(t *testing.T) {
	p := New(testConfig(), &fakeClients{completion: &fakeCompletion{}}, &fakeFetcher{})
	_, err := p.Suggest(context.Background(), nil)
	assert.Error(t, err)
}

func TestNormalizeCategories(t *testing.T) {
	got := NormalizeCategories([]string{
		"  fire damage ", "Theft/Burglary", "FIRE DAMAGE", "", "water   damage",
	})
	assert.Equal(t, []string{"Fire Damage", "Theft And Burglary", "Water Damage"}, got)
}

func TestBuildCorpusTruncation(t *testing.T) {
	big := make([]byte, corpusMaxChars+100)
	for i := range big {
		big[i] = 'a'
	}
	corpus := buildCorpus([]*model.Product{testProduct("acme", string(big))})
	assert.LessOrEqual(t, len(corpus), corpusMaxChars+len(truncationNotice))
	assert.Contains(t, corpus, "[DOCUMENT TRUNCATED]")
}
