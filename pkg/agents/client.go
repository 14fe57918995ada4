// Package agents provides a client for an agent service with a
// code-interpreter tool, speaking the assistants REST protocol of threads,
// runs and messages.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
)

const (
	defaultAPIVersion = "2025-05-01"

	runPollInitialInterval = 2 * time.Second
	runPollMaxInterval     = 10 * time.Second
	runMaxWait             = 10 * time.Minute
)

// ThreadMessage is one message on a thread, split into its text parts and
// generated image file ids.
type ThreadMessage struct {
	Role         string
	Texts        []string
	ImageFileIDs []string
}

// Client drives a code-interpreter agent session.
type Client interface {
	CreateAgent(ctx context.Context, name, instructions, modelDeployment string) (string, error)
	DeleteAgent(ctx context.Context, agentID string) error
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, content string) error
	StartRun(ctx context.Context, threadID, agentID string) (string, error)
	WaitForRun(ctx context.Context, threadID, runID string) error
	ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)
	FileContent(ctx context.Context, fileID string) ([]byte, error)
}

// HTTPClient implements Client against the agent REST API.
type HTTPClient struct {
	endpoint     string
	key          string
	apiVersion   string
	client       *http.Client
	pollInterval time.Duration
}

// Option configures the HTTPClient.
type Option func(*HTTPClient)

// WithAPIVersion overrides the API version query parameter.
func WithAPIVersion(v string) Option {
	return func(c *HTTPClient) { c.apiVersion = v }
}

// WithPollInterval overrides the initial run poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *HTTPClient) { c.pollInterval = d }
}

// NewHTTPClient creates an agent service client.
func NewHTTPClient(endpoint, key string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		key:          key,
		apiVersion:   defaultAPIVersion,
		client:       &http.Client{Timeout: 60 * time.Second},
		pollInterval: runPollInitialInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) url(path string) string {
	return fmt.Sprintf("%s%s?api-version=%s", c.endpoint, path, c.apiVersion)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "agents: marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return eris.Wrap(err, "agents: create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("api-key", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "agents: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "agents: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("agents: %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "agents: unmarshal response")
		}
	}

	return nil
}

// CreateAgent creates an agent with the code-interpreter tool enabled.
func (c *HTTPClient) CreateAgent(ctx context.Context, name, instructions, modelDeployment string) (string, error) {
	in := map[string]any{
		"model":        modelDeployment,
		"name":         name,
		"instructions": instructions,
		"tools":        []map[string]string{{"type": "code_interpreter"}},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/assistants", in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// DeleteAgent removes the agent.
func (c *HTTPClient) DeleteAgent(ctx context.Context, agentID string) error {
	return c.do(ctx, http.MethodDelete, "/assistants/"+agentID, nil, nil)
}

// CreateThread opens a new conversation thread.
func (c *HTTPClient) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// AddMessage appends a user message to the thread.
func (c *HTTPClient) AddMessage(ctx context.Context, threadID, content string) error {
	in := map[string]string{"role": "user", "content": content}
	return c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", in, nil)
}

// StartRun starts the agent on the thread and returns the run id.
func (c *HTTPClient) StartRun(ctx context.Context, threadID, agentID string) (string, error) {
	in := map[string]string{"assistant_id": agentID}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// WaitForRun polls the run until it reaches a terminal state.
func (c *HTTPClient) WaitForRun(ctx context.Context, threadID, runID string) error {
	interval := c.pollInterval
	deadline := time.Now().Add(runMaxWait)

	for {
		if time.Now().After(deadline) {
			return eris.Wrap(model.ErrTimeout, "agents: run did not complete in time")
		}

		var out struct {
			Status    string `json:"status"`
			LastError *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"last_error"`
		}
		if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &out); err != nil {
			return err
		}

		switch out.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired":
			msg := out.Status
			if out.LastError != nil {
				msg = fmt.Sprintf("%s: %s: %s", out.Status, out.LastError.Code, out.LastError.Message)
			}
			return eris.Errorf("agents: run %s", msg)
		}

		zap.L().Debug("agents: run pending",
			zap.String("run_id", runID),
			zap.String("status", out.Status),
			zap.Duration("wait", interval),
		)

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return eris.Wrap(ctx.Err(), "agents: wait for run")
		case <-t.C:
		}

		interval = min(interval*2, runPollMaxInterval)
	}
}

// ListMessages returns the thread's messages, newest first.
func (c *HTTPClient) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var out struct {
		Data []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text *struct {
					Value string `json:"value"`
				} `json:"text"`
				ImageFile *struct {
					FileID string `json:"file_id"`
				} `json:"image_file"`
			} `json:"content"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &out); err != nil {
		return nil, err
	}

	msgs := make([]ThreadMessage, 0, len(out.Data))
	for _, m := range out.Data {
		tm := ThreadMessage{Role: m.Role}
		for _, part := range m.Content {
			switch part.Type {
			case "text":
				if part.Text != nil {
					tm.Texts = append(tm.Texts, part.Text.Value)
				}
			case "image_file":
				if part.ImageFile != nil {
					tm.ImageFileIDs = append(tm.ImageFileIDs, part.ImageFile.FileID)
				}
			}
		}
		msgs = append(msgs, tm)
	}

	return msgs, nil
}

// FileContent downloads a generated file's bytes.
func (c *HTTPClient) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/files/"+fileID+"/content"), nil)
	if err != nil {
		return nil, eris.Wrap(err, "agents: create file request")
	}
	req.Header.Set("api-key", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "agents: fetch file %s", fileID)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "agents: read file content")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("agents: file %s returned %d", fileID, resp.StatusCode)
	}

	return data, nil
}
