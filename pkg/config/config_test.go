package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "PROVIDER_ORDER", "PROVIDER_TIMEOUT",
		"OLLAMA_HOST", "OLLAMA_MODEL", "LM_STUDIO_URL", "LM_STUDIO_MODEL",
		"GEMINI_API_KEY", "GEMINI_MODEL", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
		"MAX_QUESTIONS", "MALFORMED_BUDGET",
		"RECONNECT_WINDOW", "ENDED_LINGER", "SWEEP_INTERVAL",
		"ARCHIVE_ENABLED", "ARCHIVE_PATH",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, []string{ProviderOllama, ProviderGemini}, cfg.Providers.Order)
	assert.Equal(t, DefaultProviderTimeout, cfg.Providers.AttemptTimeout)
	assert.Equal(t, DefaultMaxCycles, cfg.Interview.MaxCycles)
	assert.Equal(t, DefaultReconnectWindow, cfg.Sessions.ReconnectWindow)
	assert.True(t, cfg.Archive.Enabled)
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9100"
providers:
  order: [ollama, lmstudio]
  ollama_model: mistral
interview:
  max_cycles: 3
sessions:
  reconnect_window: 45s
archive:
  enabled: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, []string{"ollama", "lmstudio"}, cfg.Providers.Order)
	assert.Equal(t, "mistral", cfg.Providers.OllamaModel)
	assert.Equal(t, 3, cfg.Interview.MaxCycles)
	assert.Equal(t, 45*time.Second, cfg.Sessions.ReconnectWindow)
	assert.False(t, cfg.Archive.Enabled)
	// Untouched values keep their defaults.
	assert.Equal(t, DefaultOllamaHost, cfg.Providers.OllamaHost)
}

func TestEnvOverridesFile(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  order: [ollama]
interview:
  max_cycles: 3
`), 0o644))

	t.Setenv("MAX_QUESTIONS", "5")
	t.Setenv("PROVIDER_ORDER", "lmstudio,ollama")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Interview.MaxCycles)
	assert.Equal(t, []string{"lmstudio", "ollama"}, cfg.Providers.Order)
}

func TestValidateRejections(t *testing.T) {
	clearProviderEnv(t)

	base := func() Config {
		cfg := defaults()
		cfg.Providers.Order = []string{ProviderOllama}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty order", func(c *Config) { c.Providers.Order = nil }, "at least one provider"},
		{"unknown provider", func(c *Config) { c.Providers.Order = []string{"gpt5"} }, "unknown provider"},
		{"duplicate provider", func(c *Config) { c.Providers.Order = []string{"ollama", "ollama"} }, "listed twice"},
		{"gemini without key", func(c *Config) { c.Providers.Order = []string{"gemini"} }, "GEMINI_API_KEY"},
		{"anthropic without key", func(c *Config) { c.Providers.Order = []string{"anthropic"} }, "ANTHROPIC_API_KEY"},
		{"zero timeout", func(c *Config) { c.Providers.AttemptTimeout = 0 }, "timeout must be positive"},
		{"zero cycles", func(c *Config) { c.Interview.MaxCycles = 0 }, "cycles must be positive"},
		{"archive without path", func(c *Config) { c.Archive.Path = "" }, "archive path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProviderSpecsFollowOrder(t *testing.T) {
	clearProviderEnv(t)

	cfg := defaults()
	cfg.Providers.Order = []string{ProviderLMStudio, ProviderGemini}
	cfg.Providers.GeminiAPIKey = "key"
	require.NoError(t, cfg.Validate())

	specs := cfg.ProviderSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, ProviderLMStudio, specs[0].Name)
	assert.Equal(t, DefaultLMStudioBaseURL, specs[0].Endpoint)
	assert.Equal(t, ProviderGemini, specs[1].Name)
	assert.Equal(t, "key", specs[1].APIKey)
}
