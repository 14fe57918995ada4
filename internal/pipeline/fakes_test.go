package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/sells-group/policy-compare/internal/config"
	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/pkg/agents"
	"github.com/sells-group/policy-compare/pkg/completion"
	"github.com/sells-group/policy-compare/pkg/docintel"

	"github.com/rotisserie/eris"
)

func testConfig() *config.Config {
	return &config.Config{
		OpenAI: config.OpenAIConfig{ReasoningDeployment: "o4-mini"},
		Ingest: config.IngestConfig{Concurrency: 2, MaxDocsPerProduct: 10},
		Extract: config.ExtractConfig{
			MaxContextChars: 280000,
			Retries:         1,
			Concurrency:     2,
			MaxTokens:       1000,
		},
	}
}

// fakeClients satisfies Clients with injectable fakes.
type fakeClients struct {
	docintel   docintel.Client
	completion completion.Client
	agents     agents.Client
	agentModel string
	err        error
}

func (f *fakeClients) DocIntel() (docintel.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docintel, nil
}

func (f *fakeClients) Completion() (completion.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func (f *fakeClients) Agents() (agents.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.agents, nil
}

func (f *fakeClients) AgentModel() (string, error) {
	if f.agentModel == "" {
		return "gpt-4o", nil
	}
	return f.agentModel, nil
}

func (f *fakeClients) ReasoningDeployment() string { return "o4-mini" }

// fakeFetcher returns canned bodies per URL.
type fakeFetcher struct {
	bodies map[string]string
	errs   map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err, ok := f.errs[rawURL]; ok {
		return nil, "", err
	}
	if body, ok := f.bodies[rawURL]; ok {
		return []byte(body), "application/pdf", nil
	}
	return nil, "", eris.Wrapf(model.ErrFetch, "fetch: unexpected status 404 from %s", rawURL)
}

// fakeDocIntel turns document bytes into a single markdown page.
type fakeDocIntel struct {
	err   error
	calls int
}

func (f *fakeDocIntel) AnalyzeLayout(ctx context.Context, data []byte) ([]model.PageText, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []model.PageText{{Index: 1, Markdown: "# Terms\n\n" + string(data)}}, nil
}

// fakeCompletion replays queued responses in order. A response of the
// form "ERR:..." is returned as an error instead.
type fakeCompletion struct {
	mu        sync.Mutex
	responses []string
	requests  []completion.Request
}

func (f *fakeCompletion) Complete(ctx context.Context, req completion.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return "", eris.Wrap(model.ErrExtractionService, "completion: no responses queued")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	if after, found := strings.CutPrefix(resp, "ERR:"); found {
		return "", eris.Wrap(model.ErrExtractionService, after)
	}
	return resp, nil
}

// fakeAgents scripts a full code-interpreter session.
type fakeAgents struct {
	messages      []agents.ThreadMessage
	files         map[string][]byte
	fileErrs      map[string]error
	runErr        error
	deletedAgents []string
	userMessages  []string
}

func (f *fakeAgents) CreateAgent(ctx context.Context, name, instructions, modelDeployment string) (string, error) {
	return "asst_test", nil
}

func (f *fakeAgents) DeleteAgent(ctx context.Context, agentID string) error {
	f.deletedAgents = append(f.deletedAgents, agentID)
	return nil
}

func (f *fakeAgents) CreateThread(ctx context.Context) (string, error) {
	return "thread_test", nil
}

func (f *fakeAgents) AddMessage(ctx context.Context, threadID, content string) error {
	f.userMessages = append(f.userMessages, content)
	return nil
}

func (f *fakeAgents) StartRun(ctx context.Context, threadID, agentID string) (string, error) {
	return "run_test", nil
}

func (f *fakeAgents) WaitForRun(ctx context.Context, threadID, runID string) error {
	return f.runErr
}

func (f *fakeAgents) ListMessages(ctx context.Context, threadID string) ([]agents.ThreadMessage, error) {
	return f.messages, nil
}

func (f *fakeAgents) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	if err, ok := f.fileErrs[fileID]; ok {
		return nil, err
	}
	return f.files[fileID], nil
}

func testProduct(name string, markdown string) *model.Product {
	return &model.Product{
		ID:     "prod-" + name,
		Name:   name,
		Status: model.ProductStatusProcessed,
		Documents: []model.DocumentInfo{
			{
				Name:      name + ".pdf",
				SourceURL: "https://example.com/" + name + ".pdf",
				Pages:     []model.PageText{{Index: 1, Markdown: markdown}},
			},
		},
	}
}

func testQuestionConfig() *model.QuestionConfig {
	return &model.QuestionConfig{
		Categories: []string{"Fire Damage", "Water Damage"},
		Questions: []model.Question{
			{ID: "q001", Text: "Is this category covered under the insurance?", AppliesTo: []string{"Fire Damage", "Water Damage"}},
			{ID: "q002", Text: "What is the maximum coverage amount?", AppliesTo: []string{"Fire Damage"}},
			{ID: "q003", Text: "What deductible applies?", AppliesTo: []string{"Water Damage"}},
		},
	}
}
