package main

import (
	"context"
	"time"

	"github.com/sells-group/policy-compare/internal/fetcher"
	"github.com/sells-group/policy-compare/internal/pipeline"
	"github.com/sells-group/policy-compare/internal/settings"
	"github.com/sells-group/policy-compare/internal/store"
)

// workflowEnv holds the initialized collaborators shared by the
// workflow commands. Callers should defer env.Close().
type workflowEnv struct {
	Settings *settings.Store
	Pipeline *pipeline.Pipeline
	Store    store.Store
}

func (e *workflowEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initWorkflow(ctx context.Context) (*workflowEnv, error) {
	settingsStore := settings.NewStore(cfg.Data.SettingsPath, settings.EnvFromOS())

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    time.Duration(cfg.Ingest.FetchTimeoutSecs) * time.Second,
		MaxRetries: cfg.Ingest.FetchRetries,
	})

	return &workflowEnv{
		Settings: settingsStore,
		Pipeline: pipeline.New(cfg, pipeline.NewSettingsClients(cfg, settingsStore), f),
		Store:    st,
	}, nil
}
