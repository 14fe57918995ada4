package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/pkg/completion"
)

const categoriesSystemPrompt = "You are an AI assistant specialized in analyzing insurance products. Your task is to identify key coverage categories based on the provided insurance terms documents."

const categoriesUserPrompt = `Based on the following combined text from multiple insurance product documents, identify the main coverage categories typically found.
Focus on distinct insurable perils or sections of coverage.

Provide the output ONLY as a valid JSON object with a single key "categories" which is a list of unique category names (strings).
Example Format: {"categories": ["Fire Damage", "Water Damage", "Theft/Burglary"]}

Examples: %s

Combined Insurance Text:
%s`

const questionsSystemPrompt = "You are an AI assistant creating questions for comparing insurance products."

const questionsUserPrompt = `Generate comparison questions for the following categories:

%s

Requirements:
1. Generate questions that can apply to multiple categories where appropriate.
2. For each category's core coverage, use the standard question: "Is this category covered under the insurance?"
3. Add questions about:
   - Coverage limits
   - Exclusions and conditions
   - Amounts and deductibles
   - Special terms or restrictions
4. Questions should be generic enough to work across different insurance products.
5. The category names in applies_to_categories must EXACTLY match the provided categories.
6. Generate a total of 20-30 questions across all categories.

%s

Provide ONLY a valid JSON object with key "questions" containing question objects.
Each question object must have:
- "text": The question text
- "applies_to_categories": List of EXACT category names from above list

Example format:
{
    "questions": [
        {"text": "Is this category covered under the insurance?", "applies_to_categories": [%q]},
        {"text": "What is the maximum coverage amount?", "applies_to_categories": [%q]}
    ]
}

Context from Insurance Documents:
%s`

// Suggest derives a question taxonomy from the ingested documents with
// two completion calls: one for coverage categories, one for comparison
// questions over those categories. Malformed model output surfaces as
// ErrSuggestionParse so callers can fall back to a manual config.
func (p *Pipeline) Suggest(ctx context.Context, products []*model.Product) (*model.QuestionConfig, error) {
	if len(products) == 0 {
		return nil, eris.New("suggest: no products ingested")
	}

	client, err := p.clients.Completion()
	if err != nil {
		return nil, err
	}

	corpus := buildCorpus(products)
	if strings.TrimSpace(corpus) == "" {
		return nil, eris.New("suggest: ingested products have no text")
	}

	categories, err := p.suggestCategories(ctx, client, corpus)
	if err != nil {
		return nil, err
	}

	questions, err := p.suggestQuestions(ctx, client, corpus, categories)
	if err != nil {
		return nil, err
	}

	zap.L().Info("suggest: taxonomy generated",
		zap.Int("categories", len(categories)),
		zap.Int("questions", len(questions)),
	)

	return &model.QuestionConfig{Categories: categories, Questions: questions}, nil
}

func (p *Pipeline) suggestCategories(ctx context.Context, client completion.Client, corpus string) ([]string, error) {
	var resp struct {
		Categories []string `json:"categories"`
	}
	req := completion.Request{
		Deployment: p.clients.ReasoningDeployment(),
		System:     categoriesSystemPrompt,
		User:       fmt.Sprintf(categoriesUserPrompt, p.cfg.Defaults.SampleCategories, corpus),
		MaxTokens:  p.cfg.Extract.MaxTokens,
		JSONMode:   true,
	}
	if err := p.completeJSON(ctx, client, req, &resp); err != nil {
		return nil, eris.Wrap(model.ErrSuggestionParse, eris.Wrap(err, "suggest categories").Error())
	}

	categories := NormalizeCategories(resp.Categories)
	if len(categories) == 0 {
		return nil, eris.Wrap(model.ErrSuggestionParse, "suggest categories: model returned no categories")
	}
	return categories, nil
}

func (p *Pipeline) suggestQuestions(ctx context.Context, client completion.Client, corpus string, categories []string) ([]model.Question, error) {
	var resp struct {
		Questions []struct {
			Text                string   `json:"text"`
			AppliesToCategories []string `json:"applies_to_categories"`
		} `json:"questions"`
	}
	req := completion.Request{
		Deployment: p.clients.ReasoningDeployment(),
		System:     questionsSystemPrompt,
		User: fmt.Sprintf(questionsUserPrompt,
			"- "+strings.Join(categories, "\n- "),
			p.cfg.Defaults.SampleQuestions,
			categories[0],
			categories[0],
			corpus,
		),
		MaxTokens: p.cfg.Extract.MaxTokens,
		JSONMode:  true,
	}
	if err := p.completeJSON(ctx, client, req, &resp); err != nil {
		return nil, eris.Wrap(model.ErrSuggestionParse, eris.Wrap(err, "suggest questions").Error())
	}

	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c] = true
	}

	var questions []model.Question
	for _, q := range resp.Questions {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		// Keep only categories that exist in the taxonomy.
		var applies []string
		for _, c := range NormalizeCategories(q.AppliesToCategories) {
			if known[c] {
				applies = append(applies, c)
			}
		}
		if len(applies) == 0 {
			zap.L().Debug("suggest: dropping question with no valid categories",
				zap.String("text", text),
			)
			continue
		}
		questions = append(questions, model.Question{
			ID:        fmt.Sprintf("q%03d", len(questions)+1),
			Text:      text,
			AppliesTo: applies,
		})
	}
	if len(questions) == 0 {
		return nil, eris.Wrap(model.ErrSuggestionParse, "suggest questions: model returned no usable questions")
	}
	return questions, nil
}

// buildCorpus joins the full markdown of every product, capped at the
// suggestion corpus limit.
func buildCorpus(products []*model.Product) string {
	var parts []string
	for _, prod := range products {
		if text := prod.FullMarkdown(); text != "" {
			parts = append(parts, fmt.Sprintf("=== Product: %s ===\n%s", prod.Name, text))
		}
	}
	return truncateContext(strings.Join(parts, "\n\n"), corpusMaxChars)
}

var categoryTitleCaser = cases.Title(language.English)

// NormalizeCategories cleans category names: trims whitespace, replaces
// "/" with " and ", title-cases, dedupes and sorts.
func NormalizeCategories(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		c = strings.ReplaceAll(c, "/", " and ")
		c = strings.Join(strings.Fields(c), " ")
		c = categoryTitleCaser.String(strings.ToLower(c))
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
