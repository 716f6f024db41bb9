package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mathsgpt/internal/agent"
	"mathsgpt/internal/config"
	"mathsgpt/internal/domain"
	"mathsgpt/internal/netutil"
	"mathsgpt/internal/provider"
	"mathsgpt/internal/runlog"
	"mathsgpt/internal/tool"
)

// app is one fully wired agent plus the resources it owns.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	agent  *agent.Agent
	tools  *tool.Registry
	store  *runlog.SQLiteStore // nil when the run log is disabled
	model  string

	// inFlight counts runs still using the app; see closeWhenIdle.
	inFlight sync.WaitGroup
}

type appOptions struct {
	Model   string
	OnEntry func(agent.ScratchpadEntry)
	// Oracle replaces the configured provider chain when set.
	Oracle domain.Oracle
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	client := netutil.SharedHTTPClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second)

	oracle := opts.Oracle
	if oracle == nil {
		var err error
		oracle, err = provider.NewFactory(cfg, client, logger).Oracle(opts.Model)
		if err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
	}

	tools, err := buildRegistry(cfg, oracle, client, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, tools: tools, model: opts.Model}

	var recorder domain.RunStore
	if cfg.RunLog.Enabled {
		store, err := openRunLog(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.store = store
		recorder = store
	}

	a.agent = agent.NewAgent(agent.Config{
		Oracle:        oracle,
		Tools:         tools,
		Prompt:        agent.NewPromptBuilder(cfg.Agent.PromptPrefix),
		Logger:        logger,
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   cfg.Agent.Temperature,
		OnEntry:       opts.OnEntry,
		Recorder:      recorder,
		Model:         opts.Model,
	})
	return a, nil
}

// closeWhenIdle waits for in-flight runs to finish, then closes the app.
func (a *app) closeWhenIdle() error {
	a.inFlight.Wait()
	return a.Close()
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// buildRegistry registers the enabled tools that pass tools.allowed/denied.
func buildRegistry(cfg *config.Config, oracle domain.Oracle, client *http.Client, logger *slog.Logger) (*tool.Registry, error) {
	reg := tool.NewRegistry(logger)
	filter := tool.NewFilter(cfg.Tools.Allowed, cfg.Tools.Denied)

	var candidates []domain.Tool
	if cfg.Tools.Calculator.Enabled {
		candidates = append(candidates, tool.NewCalculator(tool.CalculatorConfig{
			Oracle:    oracle,
			Logger:    logger,
			MaxTokens: cfg.Tools.Calculator.MaxTokens,
		}))
	}
	if cfg.Tools.Wikipedia.Enabled {
		candidates = append(candidates, tool.NewWikipedia(tool.WikipediaConfig{
			APIBase:  cfg.Tools.Wikipedia.APIBase,
			Language: cfg.Tools.Wikipedia.Language,
			TopK:     cfg.Tools.Wikipedia.TopK,
			MaxChars: cfg.Tools.Wikipedia.MaxChars,
			Client:   client,
			Retry:    provider.RetryPolicyFor(cfg.HTTP),
			Logger:   logger,
		}))
	}
	if cfg.Tools.Reasoning.Enabled {
		candidates = append(candidates, tool.NewReasoning(oracle, domain.CompletionOptions{
			MaxTokens:   cfg.Tools.Reasoning.MaxTokens,
			Temperature: cfg.Tools.Reasoning.Temperature,
		}))
	}

	for _, t := range candidates {
		if !filter.IsAllowed(t.Name()) {
			logger.Debug("tool filtered out", "tool", t.Name())
			continue
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	if reg.Len() == 0 {
		logger.Warn("no tools enabled; the agent can only answer directly")
	}
	return reg, nil
}

// openRunLog opens the SQLite run log and applies the retention window.
func openRunLog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runlog.SQLiteStore, error) {
	store, err := runlog.NewSQLiteStore(config.ExpandPath(cfg.RunLog.DBPath), logger)
	if err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}
	retention := time.Duration(cfg.RunLog.RetentionDays) * 24 * time.Hour
	if _, err := store.Purge(ctx, retention); err != nil {
		logger.Warn("run log purge failed", "error", err)
	}
	return store, nil
}
