package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/pkg/completion"
)

const reviewSystemPrompt = "You are an expert AI assistant reviewing extracted information from insurance terms. Your goal is to identify inaccuracies or incomplete answers by cross-referencing with the original document text."

const reviewUserPrompt = `Please review the following extracted answers for the insurance product '%s' against the provided document text.
For each extracted answer, verify its accuracy. If you find any mistakes, incorrect interpretations, or significantly incomplete answers, please list them.

Document Text for '%s':
---
%s
---

Extracted Answers to Review:
---
%s
---

Provide your review ONLY as a valid JSON object with a single key "corrections".
The "corrections" key should be a list of objects. Each object should have:
- "question_id": The ID of the question whose answer needs correction.
- "original_answer": The original extracted answer.
- "suggested_correction": Your corrected or more complete answer (string).
- "reason": A brief explanation citing the part of the document that supports your correction (e.g., "Document section X states Y...").

If an answer is correct and complete, do not include it in the "corrections" list.
If all answers are correct, return an empty list for "corrections", i.e., {"corrections": []}.
Example: {"corrections": [{"question_id": "q001", "original_answer": "Yes", "suggested_correction": "No, only for damages above 100 EUR.", "reason": "Section 3.2 specifies a deductible of 100 EUR for this coverage."}]}`

// Review asks the reviewer model to cross-check extracted answers
// against the source text. It returns suggested corrections only; the
// extractions themselves stay untouched until ApplyCorrections runs.
// Malformed correction items are dropped individually.
func (p *Pipeline) Review(ctx context.Context, product *model.Product, extractions []model.Extraction) ([]model.Correction, error) {
	if product == nil || len(product.Documents) == 0 {
		return nil, eris.New("review: product has no processed documents")
	}
	if len(extractions) == 0 {
		return nil, eris.New("review: no extractions to review")
	}

	client, err := p.clients.Completion()
	if err != nil {
		return nil, err
	}

	known := make(map[string]string, len(extractions))
	var answers strings.Builder
	for _, e := range extractions {
		if e.ProductName != product.Name || e.Status == model.ExtractionStatusErrorLLM || e.Status == model.ExtractionStatusErrorParsing {
			continue
		}
		known[e.QuestionID] = e.Answer
		fmt.Fprintf(&answers, "- %s (%s): %s\n", e.QuestionID, e.QuestionText, e.Answer)
	}
	if len(known) == 0 {
		return nil, eris.New("review: no successful extractions to review")
	}

	docText := truncateContext(product.FullMarkdown(), p.cfg.Extract.MaxContextChars)

	var resp struct {
		Corrections []struct {
			QuestionID          string `json:"question_id"`
			OriginalAnswer      string `json:"original_answer"`
			SuggestedCorrection string `json:"suggested_correction"`
			Reason              string `json:"reason"`
		} `json:"corrections"`
	}
	req := completion.Request{
		Deployment: p.clients.ReasoningDeployment(),
		System:     reviewSystemPrompt,
		User:       fmt.Sprintf(reviewUserPrompt, product.Name, product.Name, docText, answers.String()),
		MaxTokens:  p.cfg.Extract.MaxTokens,
		JSONMode:   true,
	}
	if err := p.completeJSON(ctx, client, req, &resp); err != nil {
		return nil, eris.Wrap(err, "review")
	}

	var corrections []model.Correction
	for _, c := range resp.Corrections {
		if c.QuestionID == "" || strings.TrimSpace(c.SuggestedCorrection) == "" {
			zap.L().Debug("review: dropping malformed correction item",
				zap.String("question_id", c.QuestionID),
			)
			continue
		}
		if _, ok := known[c.QuestionID]; !ok {
			zap.L().Debug("review: dropping correction for unknown question",
				zap.String("question_id", c.QuestionID),
			)
			continue
		}
		corrections = append(corrections, model.Correction{
			QuestionID:          c.QuestionID,
			OriginalAnswer:      c.OriginalAnswer,
			SuggestedCorrection: c.SuggestedCorrection,
			Reason:              c.Reason,
		})
	}

	zap.L().Info("review: done",
		zap.String("product", product.Name),
		zap.Int("reviewed", len(known)),
		zap.Int("corrections", len(corrections)),
	)

	return corrections, nil
}

// ApplyCorrections overwrites the answers named by the corrections and
// marks them corrected. Applying the same corrections again is a no-op;
// extractions without a matching correction are untouched.
func ApplyCorrections(extractions []model.Extraction, corrections []model.Correction) []model.Extraction {
	byQuestion := make(map[string]model.Correction, len(corrections))
	for _, c := range corrections {
		byQuestion[c.QuestionID] = c
	}

	out := make([]model.Extraction, len(extractions))
	copy(out, extractions)
	for i := range out {
		c, ok := byQuestion[out[i].QuestionID]
		if !ok {
			continue
		}
		out[i].Answer = c.SuggestedCorrection
		out[i].Status = model.ExtractionStatusCorrected
		out[i].CorrectionReason = c.Reason
	}
	return out
}
