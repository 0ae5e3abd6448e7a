package provider

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"korabot/internal/config"
	"korabot/internal/domain"
)

// Model roles served by the factory.
const (
	RoleText  = "text"
	RoleImage = "image"
)

// ProviderConstructor builds a provider from one model entry.
type ProviderConstructor func(mc config.ModelConfig, timeout time.Duration, logger *slog.Logger) domain.Provider

// Factory creates and caches the text and image providers from config.
type Factory struct {
	cfg          config.AIConfig
	logger       *slog.Logger
	constructors map[string]ProviderConstructor
	cache        map[string]domain.Provider
	mu           sync.Mutex
}

func NewFactory(cfg config.AIConfig, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]ProviderConstructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds or replaces a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor ProviderConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["gemini"] = func(mc config.ModelConfig, timeout time.Duration, logger *slog.Logger) domain.Provider {
		base := mc.APIBase
		if base == "" {
			base = GeminiOpenAIBase
		}
		return NewOpenAI(OpenAIConfig{Name: "gemini", APIKey: mc.APIKey, APIBase: base, Model: mc.Model, Timeout: timeout, Logger: logger})
	}
	f.constructors["openai"] = func(mc config.ModelConfig, timeout time.Duration, logger *slog.Logger) domain.Provider {
		return NewOpenAI(OpenAIConfig{APIKey: mc.APIKey, APIBase: mc.APIBase, Model: mc.Model, Timeout: timeout, Logger: logger})
	}
	f.constructors["claude"] = func(mc config.ModelConfig, timeout time.Duration, logger *slog.Logger) domain.Provider {
		return NewClaude(ClaudeConfig{APIKey: mc.APIKey, APIBase: mc.APIBase, Model: mc.Model, Timeout: timeout, Logger: logger})
	}
	f.constructors["ollama"] = func(mc config.ModelConfig, timeout time.Duration, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{APIBase: mc.APIBase, DefaultModel: mc.Model, Timeout: timeout, Logger: logger})
	}
}

// Get returns the provider for a role, creating it on first use.
func (f *Factory) Get(role string) (domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[role]; ok {
		return cached, nil
	}

	var mc config.ModelConfig
	switch role {
	case RoleText:
		mc = f.cfg.Text
	case RoleImage:
		mc = f.cfg.Image
	default:
		return nil, fmt.Errorf("unknown model role: %s", role)
	}

	ctor, ok := f.constructors[mc.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q for %s model", mc.Provider, role)
	}
	timeout := time.Duration(f.cfg.TimeoutSeconds) * time.Second
	p := ctor(mc, timeout, f.logger.With("role", role))
	f.cache[role] = p
	return p, nil
}

// Model returns the configured entry for a role.
func (f *Factory) Model(role string) config.ModelConfig {
	if role == RoleImage {
		return f.cfg.Image
	}
	return f.cfg.Text
}
