package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/pkg/completion"
)

const extractionSystemPrompt = "You are an AI assistant extracting information from insurance product terms. Focus specifically on the category: '%s'. Answer precisely based on the provided document excerpts."

const extractionUserPrompt = `Based *only* on the provided insurance document text for product '%s', answer the following questions related to the '%s' category.
If information for a question is not found, state 'Not Found' or 'Not Specified'.

Document Text:
---
%s
---

Questions for category '%s':
%s

Provide your answers ONLY as a valid JSON object. The JSON object should map each question ID (e.g., "q001", "q002") to its answer (string).
Example format: { "q001": "Yes", "q005": "5000 EUR", "q007": "" }
Important: Answer as concisely as possible. Respond in keywords / note form. If a question is not applicable, return empty string.

Ensure all question IDs listed above are present as keys in your JSON response.`

// Extract answers every configured question for the product, one
// completion call per category. A failed category yields error-status
// extractions for its questions while the other categories continue.
// Results for the same question replace earlier ones, so re-running is
// safe.
func (p *Pipeline) Extract(ctx context.Context, product *model.Product, cfg *model.QuestionConfig) ([]model.Extraction, error) {
	if product == nil || len(product.Documents) == 0 {
		return nil, eris.New("extract: product has no processed documents")
	}
	if cfg == nil || cfg.Empty() {
		return nil, eris.New("extract: question config is empty")
	}

	client, err := p.clients.Completion()
	if err != nil {
		return nil, err
	}

	docText := truncateContext(product.FullMarkdown(), p.cfg.Extract.MaxContextChars)

	var mu sync.Mutex
	var all []model.Extraction

	g, gCtx := errgroup.WithContext(ctx)
	concurrency := p.cfg.Extract.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	g.SetLimit(concurrency)

	for _, category := range cfg.Categories {
		questions := cfg.QuestionsForCategory(category)
		if len(questions) == 0 {
			continue
		}
		g.Go(func() error {
			extractions := p.extractCategory(gCtx, client, product, category, questions, docText)
			mu.Lock()
			all = append(all, extractions...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "extract")
	}

	zap.L().Info("extract: product done",
		zap.String("product", product.Name),
		zap.Int("extractions", len(all)),
	)

	return all, nil
}

// extractCategory runs one completion call for a category's questions.
// Errors never propagate; they become error-status extractions so the
// comparison table still shows the category.
func (p *Pipeline) extractCategory(ctx context.Context, client completion.Client, product *model.Product, category string, questions []model.Question, docText string) []model.Extraction {
	var list strings.Builder
	for _, q := range questions {
		fmt.Fprintf(&list, "- %s: %s\n", q.ID, q.Text)
	}

	req := completion.Request{
		Deployment: p.clients.ReasoningDeployment(),
		System:     fmt.Sprintf(extractionSystemPrompt, category),
		User:       fmt.Sprintf(extractionUserPrompt, product.Name, category, docText, category, list.String()),
		MaxTokens:  p.cfg.Extract.MaxTokens,
		JSONMode:   true,
	}

	answers := map[string]string{}
	if err := p.completeJSON(ctx, client, req, &answers); err != nil {
		status := model.ExtractionStatusErrorLLM
		if errors.Is(err, errResponseParse) {
			status = model.ExtractionStatusErrorParsing
		}
		zap.L().Warn("extract: category failed",
			zap.String("product", product.Name),
			zap.String("category", category),
			zap.Error(err),
		)
		extractions := make([]model.Extraction, 0, len(questions))
		for _, q := range questions {
			extractions = append(extractions, model.Extraction{
				ProductName:  product.Name,
				QuestionID:   q.ID,
				QuestionText: q.Text,
				Category:     category,
				Answer:       "Error: " + eris.Cause(err).Error(),
				Status:       status,
			})
		}
		return extractions
	}

	extractions := make([]model.Extraction, 0, len(questions))
	for _, q := range questions {
		answer, ok := answers[q.ID]
		if !ok {
			answer = "Not Found"
		}
		extractions = append(extractions, model.Extraction{
			ProductName:  product.Name,
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Category:     category,
			Answer:       answer,
			Status:       model.ExtractionStatusRaw,
		})
	}
	return extractions
}

// MergeExtractions overlays new extractions onto existing ones. A new
// extraction for the same (product, question, category) replaces the old
// entry; everything else is kept.
func MergeExtractions(existing, updates []model.Extraction) []model.Extraction {
	type key struct{ product, question, category string }
	index := make(map[key]int, len(existing))
	merged := make([]model.Extraction, len(existing))
	copy(merged, existing)
	for i, e := range merged {
		index[key{e.ProductName, e.QuestionID, e.Category}] = i
	}
	for _, u := range updates {
		k := key{u.ProductName, u.QuestionID, u.Category}
		if i, ok := index[k]; ok {
			merged[i] = u
			continue
		}
		index[k] = len(merged)
		merged = append(merged, u)
	}
	return merged
}
