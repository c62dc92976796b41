package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"deskbot/internal/config"
	"deskbot/internal/domain"
)

// Constructor creates a completion client from a config entry.
type Constructor func(bc config.BackendConfig, client *http.Client, logger *slog.Logger) domain.CompletionClient

// Factory creates and caches completion backends from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	httpClient   *http.Client
	constructors map[string]Constructor
	cache        map[string]domain.CompletionClient
	mu           sync.RWMutex
}

// NewFactory creates a backend factory with the built-in constructors
// registered. All backends share one pooled HTTP client with the configured
// request timeout.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		httpClient:   SharedHTTPClient(time.Duration(cfg.General.RequestTimeoutSeconds) * time.Second),
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.CompletionClient),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a backend constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["ollama"] = func(bc config.BackendConfig, client *http.Client, logger *slog.Logger) domain.CompletionClient {
		return NewOllama(OllamaConfig{APIBase: bc.APIBase, Model: bc.DefaultModel, Client: client, Logger: logger})
	}
	f.constructors["openai"] = func(bc config.BackendConfig, client *http.Client, logger *slog.Logger) domain.CompletionClient {
		return NewOpenAI(OpenAIConfig{APIKey: bc.APIKey, APIBase: bc.APIBase, Model: bc.DefaultModel, Client: client, Logger: logger})
	}
}

// Get returns the backend with the given name, or the default if name is
// empty. Created backends are cached so the same instance is reused.
// Uses double-check locking to avoid TOCTOU races.
func (f *Factory) Get(name string) (domain.CompletionClient, error) {
	if name == "" {
		name = f.cfg.General.DefaultBackend
	}

	// Fast path: read lock.
	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	// Slow path: write lock with double-check.
	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	bc, ok := f.cfg.Backends[name]
	if !ok || !bc.Enabled {
		return nil, fmt.Errorf("backend %q not configured or disabled", name)
	}

	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("no constructor for backend %q", name)
	}

	client := ctor(bc, f.httpClient, f.logger)
	f.cache[name] = client
	return client, nil
}

// Build assembles the completion client the orchestrator should use: the
// configured failover chain when present, otherwise the default backend.
func (f *Factory) Build() (domain.CompletionClient, error) {
	if len(f.cfg.General.FailoverChain) > 1 {
		backends := make([]domain.CompletionClient, 0, len(f.cfg.General.FailoverChain))
		for _, name := range f.cfg.General.FailoverChain {
			b, err := f.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover chain: %w", err)
			}
			backends = append(backends, b)
		}
		return NewFailover(backends, f.logger), nil
	}
	return f.Get("")
}
