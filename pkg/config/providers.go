// Package config loads and describes LLM provider configuration. Provider
// instances are declared in llm_providers.yaml; API keys never live in the
// file, only the names of the environment variables that hold them.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/reagentlabs/reagent/pkg/logger"
)

// DefaultConfigPaths is the search order for the provider config file,
// relative to the working directory.
var DefaultConfigPaths = []string{
	"llm_providers.yaml",
	"config/llm_providers.yaml",
	".config/llm_providers.yaml",
}

// ProviderConfig declares one provider instance.
type ProviderConfig struct {
	// ProviderID is the unique instance identifier (e.g. "openai_personal").
	ProviderID string `yaml:"provider_id" json:"provider_id" jsonschema:"title=Provider ID,description=Unique identifier for this provider instance"`

	// ProviderType selects the wire dialect.
	ProviderType string `yaml:"provider_type" json:"provider_type" jsonschema:"title=Provider Type,enum=openai,enum=anthropic,enum=gemini,enum=grok"`

	// DisplayName is the user-facing name.
	DisplayName string `yaml:"display_name" json:"display_name" jsonschema:"title=Display Name"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env" jsonschema:"title=API Key Environment Variable"`

	DefaultModel string         `yaml:"default_model,omitempty" json:"default_model,omitempty" jsonschema:"title=Default Model"`
	BaseURL      string         `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL,description=Custom API endpoint"`
	Enabled      *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,default=true"`
	Metadata     map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty" jsonschema:"title=Metadata"`
}

// IsEnabled reports the enabled flag, defaulting to true.
func (p *ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// APIKey reads the configured environment variable.
func (p *ProviderConfig) APIKey() string {
	return os.Getenv(p.APIKeyEnv)
}

// HasAPIKey reports whether the key's environment variable is set.
func (p *ProviderConfig) HasAPIKey() bool {
	return p.APIKey() != ""
}

// Validate checks required fields.
func (p *ProviderConfig) Validate() error {
	if p.ProviderID == "" {
		return fmt.Errorf("provider_id is required")
	}
	if p.ProviderType == "" {
		return fmt.Errorf("provider_type is required for %q", p.ProviderID)
	}
	if p.APIKeyEnv == "" {
		return fmt.Errorf("api_key_env is required for %q", p.ProviderID)
	}
	return nil
}

// ProvidersConfig is the full provider configuration file.
type ProvidersConfig struct {
	Providers         []*ProviderConfig `yaml:"providers" json:"providers" jsonschema:"title=Providers"`
	DefaultProviderID string            `yaml:"default_provider_id,omitempty" json:"default_provider_id,omitempty" jsonschema:"title=Default Provider ID"`
}

// Provider returns the entry with the given id, or nil.
func (c *ProvidersConfig) Provider(id string) *ProviderConfig {
	for _, p := range c.Providers {
		if p.ProviderID == id {
			return p
		}
	}
	return nil
}

// ProvidersByType returns every entry of a given dialect.
func (c *ProvidersConfig) ProvidersByType(providerType string) []*ProviderConfig {
	var out []*ProviderConfig
	for _, p := range c.Providers {
		if p.ProviderType == providerType {
			out = append(out, p)
		}
	}
	return out
}

// EnabledProviders returns entries that are enabled and have a key.
func (c *ProvidersConfig) EnabledProviders() []*ProviderConfig {
	var out []*ProviderConfig
	for _, p := range c.Providers {
		if p.IsEnabled() && p.HasAPIKey() {
			out = append(out, p)
		}
	}
	return out
}

// DefaultProvider resolves the default entry: the explicit id when set,
// otherwise the first enabled entry with a key.
func (c *ProvidersConfig) DefaultProvider() *ProviderConfig {
	if c.DefaultProviderID != "" {
		if p := c.Provider(c.DefaultProviderID); p != nil {
			return p
		}
	}
	enabled := c.EnabledProviders()
	if len(enabled) > 0 {
		return enabled[0]
	}
	return nil
}

// LoadFile loads the configuration from an explicit path.
func LoadFile(path string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty configuration file: %s", path)
	}

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	for _, p := range cfg.Providers {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid provider config in %s: %w", path, err)
		}
	}

	logger.Get().Info("loaded provider configuration",
		"path", path, "providers", len(cfg.Providers))
	return &cfg, nil
}

// Load searches the default paths and returns the first loadable file. A
// file that exists but fails to load logs a warning and the search
// continues. When nothing is found, a configuration is synthesized from
// well-known API key environment variables.
func Load() *ProvidersConfig {
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := LoadFile(path)
		if err != nil {
			logger.Get().Warn("failed to load provider config", "path", path, "error", err)
			continue
		}
		return cfg
	}

	logger.Get().Info("no provider config file found, deriving from environment")
	cfg := FromEnvironment()
	if len(cfg.Providers) == 0 {
		logger.Get().Warn("no LLM providers configured and no API keys found in environment")
	}
	return cfg
}

// FromEnvironment synthesizes a configuration from the standard API key
// variables. The first available provider becomes the default.
func FromEnvironment() *ProvidersConfig {
	type candidate struct {
		id, typ, name, env, model string
	}
	candidates := []candidate{
		{"openai_default", "openai", "OpenAI", "OPENAI_API_KEY", "gpt-4"},
		{"anthropic_default", "anthropic", "Anthropic Claude", "ANTHROPIC_API_KEY", "claude-3-5-sonnet-20241022"},
		{"gemini_default", "gemini", "Google Gemini", "GEMINI_API_KEY", "gemini-pro"},
		{"grok_default", "grok", "Grok", "GROK_API_KEY", "grok-beta"},
	}

	cfg := &ProvidersConfig{}
	for _, c := range candidates {
		if os.Getenv(c.env) == "" {
			continue
		}
		cfg.Providers = append(cfg.Providers, &ProviderConfig{
			ProviderID:   c.id,
			ProviderType: c.typ,
			DisplayName:  c.name,
			APIKeyEnv:    c.env,
			DefaultModel: c.model,
		})
	}
	if len(cfg.Providers) > 0 {
		cfg.DefaultProviderID = cfg.Providers[0].ProviderID
	}
	return cfg
}

// Save writes the configuration to path, creating parent directories.
func Save(cfg *ProvidersConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	logger.Get().Info("saved provider configuration", "path", path)
	return nil
}

// Schema returns the JSON Schema describing the configuration file.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	return reflector.Reflect(&ProvidersConfig{})
}
