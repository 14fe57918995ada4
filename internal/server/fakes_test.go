package server

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-compare/internal/config"
	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/pkg/agents"
	"github.com/sells-group/policy-compare/pkg/completion"
	"github.com/sells-group/policy-compare/pkg/docintel"
)

func testConfig(exportDir string) *config.Config {
	return &config.Config{
		Ingest: config.IngestConfig{
			MaxDocsPerProduct: 5,
			Concurrency:       1,
		},
		Extract: config.ExtractConfig{
			MaxContextChars: 280000,
			Retries:         1,
			Concurrency:     1,
			MaxTokens:       1000,
		},
		Data: config.DataConfig{ExportDir: exportDir},
	}
}

// fakeClients satisfies pipeline.Clients with injectable fakes.
type fakeClients struct {
	docintel   docintel.Client
	completion completion.Client
	agents     agents.Client
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

func (f *fakeClients) AgentModel() (string, error) { return "gpt-4o", nil }

func (f *fakeClients) ReasoningDeployment() string { return "o4-mini" }

// fakeFetcher serves canned bodies by URL.
type fakeFetcher struct {
	bodies map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) ([]byte, string, error) {
	body, ok := f.bodies[rawURL]
	if !ok {
		return nil, "", eris.Wrapf(model.ErrFetch, "404 for %s", rawURL)
	}
	return body, "application/pdf", nil
}

// fakeDocIntel turns every document into a single markdown page.
type fakeDocIntel struct{}

func (f *fakeDocIntel) AnalyzeLayout(_ context.Context, data []byte) ([]model.PageText, error) {
	return []model.PageText{{Index: 0, Markdown: "# Terms\n\n" + string(data)}}, nil
}

// fakeCompletion replays queued responses in order.
type fakeCompletion struct {
	mu        sync.Mutex
	responses []string
	requests  []completion.Request
}

func (f *fakeCompletion) Complete(_ context.Context, req completion.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return "", eris.Wrap(model.ErrExtractionService, "no responses queued")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// fakeAgents completes every run and returns scripted messages.
type fakeAgents struct {
	messages []agents.ThreadMessage
	files    map[string][]byte
}

func (f *fakeAgents) CreateAgent(context.Context, string, string, string) (string, error) {
	return "asst_test", nil
}

func (f *fakeAgents) DeleteAgent(context.Context, string) error { return nil }

func (f *fakeAgents) CreateThread(context.Context) (string, error) { return "thread_test", nil }

func (f *fakeAgents) AddMessage(context.Context, string, string) error { return nil }

func (f *fakeAgents) StartRun(context.Context, string, string) (string, error) {
	return "run_test", nil
}

func (f *fakeAgents) WaitForRun(context.Context, string, string) error { return nil }

func (f *fakeAgents) ListMessages(context.Context, string) ([]agents.ThreadMessage, error) {
	return f.messages, nil
}

func (f *fakeAgents) FileContent(_ context.Context, fileID string) ([]byte, error) {
	data, ok := f.files[fileID]
	if !ok {
		return nil, eris.Errorf("unknown file %s", fileID)
	}
	return data, nil
}
