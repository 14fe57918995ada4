// Package completion wraps an OpenAI-style chat completions endpoint
// behind a small request interface. Deployments are addressed by name,
// with reasoning deployments handled per their parameter rules.
package completion

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
)

// Request is a single chat completion call.
type Request struct {
	Deployment  string
	System      string
	User        string
	MaxTokens   int
	JSONMode    bool
	Temperature float32
}

// Client issues chat completion requests.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAIClient implements Client over the go-openai SDK.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client for an Azure-hosted endpoint.
func NewOpenAIClient(endpoint, key, apiVersion string) *OpenAIClient {
	cfg := openai.DefaultAzureConfig(key, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// NewOpenAIClientWithConfig creates a client from a prepared config.
// Tests use this to point at a local server.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// isReasoningDeployment reports whether the deployment follows reasoning
// model parameter rules (no temperature, MaxCompletionTokens).
func isReasoningDeployment(deployment string) bool {
	return strings.HasPrefix(deployment, "o1") ||
		strings.HasPrefix(deployment, "o3") ||
		strings.HasPrefix(deployment, "o4") ||
		strings.HasPrefix(deployment, "gpt-5")
}

// Complete issues the request and returns the first choice content.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: req.Deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if isReasoningDeployment(req.Deployment) {
		chatReq.MaxCompletionTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = req.MaxTokens
		if req.Temperature > 0 {
			chatReq.Temperature = req.Temperature
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", eris.Wrap(model.ErrExtractionService, eris.Wrapf(err, "completion: %s", req.Deployment).Error())
	}
	if len(resp.Choices) == 0 {
		return "", eris.Wrapf(model.ErrExtractionService, "completion: %s returned no choices", req.Deployment)
	}

	zap.L().Debug("completion",
		zap.String("deployment", req.Deployment),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
