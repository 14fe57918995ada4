// Package pipeline orchestrates the policy comparison workflow: document
// ingestion, question taxonomy suggestion, answer extraction, reviewer
// correction, agent analysis and spreadsheet export.
package pipeline

import (
	"github.com/sells-group/policy-compare/internal/config"
	"github.com/sells-group/policy-compare/internal/fetcher"
	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/settings"
	"github.com/sells-group/policy-compare/pkg/agents"
	"github.com/sells-group/policy-compare/pkg/completion"
	"github.com/sells-group/policy-compare/pkg/docintel"

	"github.com/rotisserie/eris"
)

// Clients resolves service clients lazily so that missing credentials
// surface when a stage runs, not at startup.
type Clients interface {
	DocIntel() (docintel.Client, error)
	Completion() (completion.Client, error)
	Agents() (agents.Client, error)
	AgentModel() (string, error)
	ReasoningDeployment() string
}

// Pipeline wires the workflow stages to their collaborators.
type Pipeline struct {
	cfg     *config.Config
	clients Clients
	fetcher fetcher.Fetcher
}

// New creates a Pipeline.
func New(cfg *config.Config, clients Clients, f fetcher.Fetcher) *Pipeline {
	return &Pipeline{cfg: cfg, clients: clients, fetcher: f}
}

// settingsClients builds Clients on top of the settings store, honoring
// runtime overrides on every resolution.
type settingsClients struct {
	cfg      *config.Config
	settings *settings.Store
}

// NewSettingsClients creates a Clients implementation backed by the
// effective settings store.
func NewSettingsClients(cfg *config.Config, s *settings.Store) Clients {
	return &settingsClients{cfg: cfg, settings: s}
}

func (c *settingsClients) DocIntel() (docintel.Client, error) {
	endpoint, err := c.settings.Require(settings.KeyDocIntelEndpoint)
	if err != nil {
		return nil, eris.Wrap(err, "clients: document intelligence")
	}
	key, err := c.settings.Require(settings.KeyDocIntelKey)
	if err != nil {
		return nil, eris.Wrap(err, "clients: document intelligence")
	}

	var opts []docintel.Option
	if c.cfg.DocIntel.APIVersion != "" {
		opts = append(opts, docintel.WithAPIVersion(c.cfg.DocIntel.APIVersion))
	}
	return docintel.NewHTTPClient(endpoint, key, opts...), nil
}

func (c *settingsClients) Completion() (completion.Client, error) {
	endpoint, err := c.settings.Require(settings.KeyOpenAIEndpoint)
	if err != nil {
		return nil, eris.Wrap(err, "clients: completion")
	}
	key, err := c.settings.Require(settings.KeyOpenAIKey)
	if err != nil {
		return nil, eris.Wrap(err, "clients: completion")
	}

	apiVersion := c.settings.Get(settings.KeyOpenAIAPIVersion)
	if apiVersion == "" {
		apiVersion = c.cfg.OpenAI.APIVersion
	}
	return completion.NewOpenAIClient(endpoint, key, apiVersion), nil
}

func (c *settingsClients) Agents() (agents.Client, error) {
	endpoint, err := c.settings.Require(settings.KeyAgentEndpoint)
	if err != nil {
		return nil, eris.Wrap(err, "clients: agents")
	}
	key, err := c.settings.Require(settings.KeyAgentKey)
	if err != nil {
		return nil, eris.Wrap(err, "clients: agents")
	}

	var opts []agents.Option
	if c.cfg.Agent.APIVersion != "" {
		opts = append(opts, agents.WithAPIVersion(c.cfg.Agent.APIVersion))
	}
	return agents.NewHTTPClient(endpoint, key, opts...), nil
}

func (c *settingsClients) AgentModel() (string, error) {
	if v := c.settings.Get(settings.KeyAgentModel); v != "" {
		return v, nil
	}
	if c.cfg.Agent.ModelDeployment != "" {
		return c.cfg.Agent.ModelDeployment, nil
	}
	return "", eris.Wrapf(model.ErrConfiguration, "clients: agent model deployment is not set")
}

// ReasoningDeployment returns the deployment used for extraction,
// suggestion and review calls, preferring the runtime settings override.
func (c *settingsClients) ReasoningDeployment() string {
	if v := c.settings.Get(settings.KeyReasoningDeployment); v != "" {
		return v
	}
	return c.cfg.OpenAI.ReasoningDeployment
}
