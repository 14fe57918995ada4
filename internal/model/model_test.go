package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductFullMarkdown(t *testing.T) {
	p := &Product{
		Name: "PolicyA",
		Documents: []DocumentInfo{
			{
				Name: "terms.pdf",
				Pages: []PageText{
					{Index: 0, Markdown: "# Page one"},
					{Index: 1, Markdown: "# Page two"},
				},
			},
			{
				Name:  "conditions.pdf",
				Pages: []PageText{{Index: 0, Markdown: "special terms"}},
			},
		},
	}

	md := p.FullMarkdown()
	assert.Contains(t, md, "--- Content from Document: terms.pdf ---")
	assert.Contains(t, md, "--- Content from Document: conditions.pdf ---")
	assert.Contains(t, md, "# Page one")
	assert.Contains(t, md, "special terms")
	assert.Equal(t, 3, p.PageCount())
}

func TestQuestionConfigLookups(t *testing.T) {
	qc := &QuestionConfig{
		Categories: []string{"Liability", "Theft"},
		Questions: []Question{
			{ID: "q001", Text: "Is this category covered?", AppliesTo: []string{"Liability", "Theft"}},
			{ID: "q002", Text: "What is the coverage limit?", AppliesTo: []string{"Liability"}},
		},
	}

	assert.True(t, qc.HasCategory("Theft"))
	assert.False(t, qc.HasCategory("Flood"))

	qs := qc.QuestionsForCategory("Liability")
	assert.Len(t, qs, 2)
	qs = qc.QuestionsForCategory("Theft")
	assert.Len(t, qs, 1)
	assert.Equal(t, "q001", qs[0].ID)

	q, ok := qc.QuestionByID("q002")
	assert.True(t, ok)
	assert.Equal(t, "What is the coverage limit?", q.Text)
	_, ok = qc.QuestionByID("q999")
	assert.False(t, ok)

	assert.Equal(t, "q003", qc.NextQuestionID())
	assert.False(t, qc.Empty())
	assert.True(t, (&QuestionConfig{Categories: []string{"X"}}).Empty())
}

func TestIngestReportCountsSuccesses(t *testing.T) {
	var report IngestReport
	report.Succeeded++
	report.Succeeded++
	report.Failures = append(report.Failures, IngestFailure{
		URL:   "https://insurer.test/missing.pdf",
		Stage: IngestStageFetch,
		Error: "404",
	})

	data, err := json.Marshal(report)
	assert.NoError(t, err)
	assert.JSONEq(t, `{
		"succeeded": 2,
		"failures": [{"url": "https://insurer.test/missing.pdf", "stage": "fetch", "error": "404"}]
	}`, string(data))
}

func TestNextQuestionIDSkipsDeletedSlots(t *testing.T) {
	qc := &QuestionConfig{
		Categories: []string{"Liability"},
		Questions: []Question{
			{ID: "q001", Text: "a", AppliesTo: []string{"Liability"}},
			{ID: "q002", Text: "b", AppliesTo: []string{"Liability"}},
			{ID: "q003", Text: "c", AppliesTo: []string{"Liability"}},
		},
	}

	// Remove q001; the next id must not reuse the live q003.
	qc.Questions = qc.Questions[1:]
	next := qc.NextQuestionID()
	assert.Equal(t, "q004", next)
	_, exists := qc.QuestionByID(next)
	assert.False(t, exists)

	assert.Equal(t, "q001", (&QuestionConfig{}).NextQuestionID())
}

func TestCorrectionWireShape(t *testing.T) {
	c := Correction{
		QuestionID:          "q002",
		OriginalAnswer:      "not covered",
		SuggestedCorrection: "covered up to 50,000 EUR",
		Reason:              "section 4.2 caps the payout",
	}

	data, err := json.Marshal(c)
	assert.NoError(t, err)
	assert.JSONEq(t, `{
		"question_id": "q002",
		"original_answer": "not covered",
		"suggested_correction": "covered up to 50,000 EUR",
		"reason": "section 4.2 caps the payout"
	}`, string(data))
}
