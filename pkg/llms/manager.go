package llms

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reagentlabs/reagent/pkg/config"
	"github.com/reagentlabs/reagent/pkg/logger"
	"github.com/reagentlabs/reagent/pkg/registry"
)

// ============================================================================
// FACTORY
// ============================================================================

// SupportedTypes lists the provider types the factory can build.
func SupportedTypes() []string {
	return []string{"openai", "anthropic", "gemini", "grok"}
}

// New constructs a provider of the given type. An empty baseURL and zero
// timeout select the dialect defaults.
func New(providerType, apiKey, baseURL string, timeout time.Duration) (Provider, error) {
	switch providerType {
	case "openai":
		opts := []OpenAIOption{}
		if baseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(baseURL))
		}
		if timeout > 0 {
			opts = append(opts, WithOpenAITimeout(timeout))
		}
		return NewOpenAIProvider(apiKey, opts...)
	case "anthropic":
		opts := []AnthropicOption{}
		if baseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(baseURL))
		}
		if timeout > 0 {
			opts = append(opts, WithAnthropicTimeout(timeout))
		}
		return NewAnthropicProvider(apiKey, opts...)
	case "gemini":
		opts := []GeminiOption{}
		if baseURL != "" {
			opts = append(opts, WithGeminiBaseURL(baseURL))
		}
		if timeout > 0 {
			opts = append(opts, WithGeminiTimeout(timeout))
		}
		return NewGeminiProvider(apiKey, opts...)
	case "grok":
		opts := []GrokOption{}
		if baseURL != "" {
			opts = append(opts, WithGrokBaseURL(baseURL))
		}
		if timeout > 0 {
			opts = append(opts, WithGrokTimeout(timeout))
		}
		return NewGrokProvider(apiKey, opts...)
	default:
		return nil, fmt.Errorf("%w: %s (supported: openai, anthropic, gemini, grok)",
			ErrUnknownProvider, providerType)
	}
}

// TypeInfo reports the capabilities of a provider type without needing an
// API key.
func TypeInfo(providerType string) (Info, error) {
	switch providerType {
	case "openai":
		return Info{Type: "openai", SupportsTools: true, SupportsStructuredOutput: true, Models: openAIModels}, nil
	case "anthropic":
		return Info{Type: "anthropic", SupportsTools: true, SupportsStructuredOutput: true, Models: anthropicModels}, nil
	case "gemini":
		return Info{Type: "gemini", SupportsTools: true, SupportsStructuredOutput: true, Models: geminiModels}, nil
	case "grok":
		return Info{Type: "grok", SupportsTools: true, SupportsStructuredOutput: true, Models: grokModels}, nil
	default:
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerType)
	}
}

// ============================================================================
// MANAGER
// ============================================================================

// Manager owns a set of provider instances keyed by id and routes lookups,
// including a default instance for callers that don't care which backend
// answers.
type Manager struct {
	providers *registry.BaseRegistry[Provider]

	mu        sync.RWMutex
	defaultID string
}

func NewManager() *Manager {
	return &Manager{
		providers: registry.NewBaseRegistry[Provider](),
	}
}

// Add constructs and registers a provider instance.
func (m *Manager) Add(id, providerType, apiKey, baseURL string, timeout time.Duration, setDefault bool) (Provider, error) {
	if _, exists := m.providers.Get(id); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, id)
	}

	provider, err := New(providerType, apiKey, baseURL, timeout)
	if err != nil {
		return nil, err
	}

	if err := m.providers.Register(id, provider); err != nil {
		provider.Close()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, id)
	}

	m.mu.Lock()
	if setDefault || m.defaultID == "" {
		m.defaultID = id
	}
	m.mu.Unlock()

	logger.Get().Info("registered LLM provider", "id", id, "type", providerType)
	return provider, nil
}

// Get returns the instance with the given id, or the default instance when
// id is empty.
func (m *Manager) Get(id string) (Provider, error) {
	if id == "" {
		m.mu.RLock()
		id = m.defaultID
		m.mu.RUnlock()
		if id == "" {
			return nil, fmt.Errorf("%w: no default provider set", ErrProviderNotFound)
		}
	}

	provider, exists := m.providers.Get(id)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return provider, nil
}

// Remove closes and drops a provider instance. Removing the default
// clears the default id.
func (m *Manager) Remove(id string) {
	provider, exists := m.providers.Get(id)
	if !exists {
		return
	}

	provider.Close()
	m.providers.Remove(id)

	m.mu.Lock()
	if m.defaultID == id {
		m.defaultID = ""
	}
	m.mu.Unlock()
}

// SetDefault marks an existing instance as the default.
func (m *Manager) SetDefault(id string) error {
	if _, exists := m.providers.Get(id); !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	m.mu.Lock()
	m.defaultID = id
	m.mu.Unlock()
	return nil
}

// DefaultID returns the current default instance id.
func (m *Manager) DefaultID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultID
}

// List describes every registered instance, sorted by id.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defaultID := m.defaultID
	m.mu.RUnlock()

	providers := m.providers.List()
	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		p := providers[id]
		infos = append(infos, Info{
			ID:                       id,
			Type:                     p.Name(),
			IsDefault:                id == defaultID,
			SupportsTools:            p.SupportsToolCalling(),
			SupportsStructuredOutput: p.SupportsStructuredOutput(),
		})
	}
	return infos
}

// Close releases every provider instance.
func (m *Manager) Close() error {
	for id, p := range m.providers.List() {
		p.Close()
		m.providers.Remove(id)
	}
	m.mu.Lock()
	m.defaultID = ""
	m.mu.Unlock()
	return nil
}

// NewManagerFromConfig builds a manager from the provider configuration.
// Entries without an API key in the environment are skipped with a
// warning; a broken entry never fails the whole load.
func NewManagerFromConfig(cfg *config.ProvidersConfig) (*Manager, error) {
	m := NewManager()

	for _, pc := range cfg.Providers {
		if !pc.IsEnabled() {
			continue
		}
		if !pc.HasAPIKey() {
			logger.Get().Warn("skipping provider: API key environment variable not set",
				"provider_id", pc.ProviderID, "api_key_env", pc.APIKeyEnv)
			continue
		}

		setDefault := pc.ProviderID == cfg.DefaultProviderID
		if _, err := m.Add(pc.ProviderID, pc.ProviderType, pc.APIKey(), pc.BaseURL, 0, setDefault); err != nil {
			logger.Get().Warn("skipping provider", "provider_id", pc.ProviderID, "error", err)
		}
	}

	return m, nil
}
