package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reagentlabs/reagent/pkg/config"
)

func TestFactoryBuildsEveryType(t *testing.T) {
	for _, typ := range SupportedTypes() {
		p, err := New(typ, "key", "", 0)
		require.NoError(t, err, "New(%q)", typ)
		assert.Equal(t, typ, p.Name())
		p.Close()
	}
}

func TestFactoryUnknownType(t *testing.T) {
	_, err := New("cohere", "key", "", 0)
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestManagerAddAndGet(t *testing.T) {
	m := NewManager()
	defer m.Close()

	_, err := m.Add("primary", "openai", "key", "", 0, false)
	require.NoError(t, err)

	// First instance becomes the default even without setDefault.
	assert.Equal(t, "primary", m.DefaultID())

	p, err := m.Get("")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestManagerDuplicateID(t *testing.T) {
	m := NewManager()
	defer m.Close()

	_, err := m.Add("p", "openai", "key", "", 0, false)
	require.NoError(t, err)

	_, err = m.Add("p", "anthropic", "key", "", 0, false)
	assert.ErrorIs(t, err, ErrDuplicateProvider)
}

func TestManagerDefaultRouting(t *testing.T) {
	m := NewManager()
	defer m.Close()

	m.Add("a", "openai", "key", "", 0, false)
	m.Add("b", "anthropic", "key", "", 0, true)

	assert.Equal(t, "b", m.DefaultID(), "setDefault must win")

	require.NoError(t, m.SetDefault("a"))
	assert.ErrorIs(t, m.SetDefault("nope"), ErrProviderNotFound)

	m.Remove("a")
	assert.Empty(t, m.DefaultID(), "removing the default must clear it")

	_, err := m.Get("")
	assert.Error(t, err, "no default set")
}

func TestManagerList(t *testing.T) {
	m := NewManager()
	defer m.Close()

	m.Add("zeta", "openai", "key", "", 0, false)
	m.Add("alpha", "gemini", "key", "", 0, true)

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].ID, "ids must sort")
	assert.Equal(t, "zeta", infos[1].ID)
	assert.True(t, infos[0].IsDefault)
	assert.False(t, infos[1].IsDefault)
}

func TestNewManagerFromConfig(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "secret")
	t.Setenv("TEST_MISSING_KEY", "")

	disabled := false
	cfg := &config.ProvidersConfig{
		DefaultProviderID: "anthropic_main",
		Providers: []*config.ProviderConfig{
			{ProviderID: "openai_main", ProviderType: "openai", APIKeyEnv: "TEST_LLM_KEY"},
			{ProviderID: "anthropic_main", ProviderType: "anthropic", APIKeyEnv: "TEST_LLM_KEY"},
			{ProviderID: "keyless", ProviderType: "gemini", APIKeyEnv: "TEST_MISSING_KEY"},
			{ProviderID: "off", ProviderType: "grok", APIKeyEnv: "TEST_LLM_KEY", Enabled: &disabled},
			{ProviderID: "broken", ProviderType: "not_a_dialect", APIKeyEnv: "TEST_LLM_KEY"},
		},
	}

	m, err := NewManagerFromConfig(cfg)
	require.NoError(t, err)
	defer m.Close()

	// keyless, disabled and unknown-type entries are skipped, not fatal.
	require.Len(t, m.List(), 2)
	assert.Equal(t, "anthropic_main", m.DefaultID())
}
