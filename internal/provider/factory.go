package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"mathsgpt/internal/config"
	"mathsgpt/internal/domain"
	"mathsgpt/internal/netutil"
)

// ProviderConstructor creates a provider from a config entry.
type ProviderConstructor func(name string, pc config.ProviderConfig) (domain.Provider, error)

// Factory creates and caches LLM providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	client       *http.Client
	retry        netutil.RetryPolicy
	constructors map[string]ProviderConstructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors
// registered. client may be nil.
func NewFactory(cfg *config.Config, client *http.Client, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		retry:        RetryPolicyFor(cfg.HTTP),
		constructors: make(map[string]ProviderConstructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RetryPolicyFor maps http.maxRetries onto a retry policy. Zero means no
// retries rather than the policy's built-in default.
func RetryPolicyFor(hc config.HTTPConfig) netutil.RetryPolicy {
	if hc.MaxRetries <= 0 {
		return netutil.NoRetry
	}
	return netutil.RetryPolicy{MaxRetries: hc.MaxRetries}
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor ProviderConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) openAICompatible(name string, pc config.ProviderConfig) (domain.Provider, error) {
	return NewOpenAI(OpenAIConfig{
		Name:    name,
		APIKey:  pc.ResolvedAPIKey(),
		APIBase: pc.APIBase,
		Model:   pc.DefaultModel,
		Client:  f.client,
		Retry:   f.retry,
		Logger:  f.logger.With("provider", name),
	}), nil
}

func (f *Factory) registerDefaults() {
	f.constructors["groq"] = f.openAICompatible
	f.constructors["openai"] = f.openAICompatible

	f.constructors["ollama"] = func(name string, pc config.ProviderConfig) (domain.Provider, error) {
		return NewOllama(OllamaConfig{
			APIBase:      pc.APIBase,
			DefaultModel: pc.DefaultModel,
			Client:       f.client,
			Retry:        f.retry,
			Logger:       f.logger.With("provider", name),
		}), nil
	}

	f.constructors["claude"] = func(name string, pc config.ProviderConfig) (domain.Provider, error) {
		return NewClaude(ClaudeConfig{
			APIKey:  pc.ResolvedAPIKey(),
			APIBase: pc.APIBase,
			Model:   pc.DefaultModel,
			Client:  f.client,
			Retry:   f.retry,
			Logger:  f.logger.With("provider", name),
		}), nil
	}

	f.constructors["gemini"] = func(name string, pc config.ProviderConfig) (domain.Provider, error) {
		return NewGemini(context.Background(), GeminiConfig{
			APIKey:  pc.ResolvedAPIKey(),
			APIBase: pc.APIBase,
			Model:   pc.DefaultModel,
			Client:  f.client,
			Logger:  f.logger.With("provider", name),
		})
	}
}

// Get returns the provider with the given name, or the default if name is empty.
// Created providers are cached so the same instance is reused across calls.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	ctor, found := f.constructors[name]
	if !found {
		if pc.APIBase == "" {
			return nil, fmt.Errorf("provider %s: no constructor registered and no API base configured", name)
		}
		// Unknown providers are treated as OpenAI-compatible.
		ctor = f.openAICompatible
	}
	p, err := ctor(name, pc)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}

	f.cache[name] = p
	return p, nil
}

// Chain returns the default provider followed by the enabled entries of the
// failover chain. A single provider is returned unwrapped.
func (f *Factory) Chain() (domain.Provider, error) {
	primary, err := f.Get("")
	if err != nil {
		return nil, err
	}
	chain := []domain.Provider{primary}
	for _, name := range f.cfg.General.FailoverChain {
		if name == f.cfg.General.DefaultProvider {
			continue
		}
		p, err := f.Get(name)
		if err != nil {
			f.logger.Warn("skipping failover provider", "provider", name, "error", err)
			continue
		}
		chain = append(chain, p)
	}
	if len(chain) == 1 {
		return primary, nil
	}
	return NewFailoverProvider(chain, f.logger), nil
}

// Oracle builds the rate-limited oracle the agent and its tools share. A
// non-empty model overrides the default provider's configured model.
func (f *Factory) Oracle(model string) (domain.Oracle, error) {
	p, err := f.Chain()
	if err != nil {
		return nil, err
	}
	var oracle domain.Oracle = NewOracle(p, model)

	pc := f.cfg.Providers[f.cfg.General.DefaultProvider]
	if pc.RateLimitPerMin > 0 {
		oracle = WithRateLimit(oracle, NewRateLimiter(pc.RateLimitBurst, float64(pc.RateLimitPerMin)))
	}
	return oracle, nil
}
