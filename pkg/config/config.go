// Package config provides configuration loading and validation for the
// interview service. Values come from an optional YAML file overlaid by
// environment variables; environment wins.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"interviewd/pkg/llm"
)

// Provider name constants used in PROVIDER_ORDER.
const (
	ProviderOllama    = "ollama"
	ProviderLMStudio  = "lmstudio"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Defaults applied before file and environment loading.
const (
	DefaultListenAddr      = ":8000"
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultOllamaModel     = "llama3.1"
	DefaultLMStudioBaseURL = "http://localhost:1234/v1"
	DefaultLMStudioModel   = "local-model"
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultAnthropicModel  = "claude-3-5-haiku-latest"

	DefaultProviderTimeout = 30 * time.Second
	DefaultMaxCycles       = 8
	DefaultMalformedBudget = 5
	DefaultReconnectWindow = 2 * time.Minute
	DefaultEndedLinger     = 30 * time.Second
	DefaultSweepInterval   = 30 * time.Second
)

// Providers configures the router's preference list and the individual
// provider backends.
type Providers struct {
	Order           []string      `yaml:"order" env:"PROVIDER_ORDER" envSeparator:","`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout" env:"PROVIDER_TIMEOUT"`
	OllamaHost      string        `yaml:"ollama_host" env:"OLLAMA_HOST"`
	OllamaModel     string        `yaml:"ollama_model" env:"OLLAMA_MODEL"`
	LMStudioBaseURL string        `yaml:"lmstudio_base_url" env:"LM_STUDIO_URL"`
	LMStudioModel   string        `yaml:"lmstudio_model" env:"LM_STUDIO_MODEL"`
	GeminiAPIKey    string        `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	GeminiModel     string        `yaml:"gemini_model" env:"GEMINI_MODEL"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string        `yaml:"anthropic_model" env:"ANTHROPIC_MODEL"`
}

// Interview configures the per-session flow.
type Interview struct {
	// MaxCycles bounds the number of question/answer cycles before feedback
	// is requested.
	MaxCycles int `yaml:"max_cycles" env:"MAX_QUESTIONS"`
	// MalformedBudget is how many malformed frames a session tolerates
	// before it is ended.
	MalformedBudget int `yaml:"malformed_budget" env:"MALFORMED_BUDGET"`
}

// Sessions configures registry eviction.
type Sessions struct {
	// ReconnectWindow is how long a detached, unfinished session is kept
	// waiting for the client to come back.
	ReconnectWindow time.Duration `yaml:"reconnect_window" env:"RECONNECT_WINDOW"`
	// EndedLinger is how long an ended session is kept so a late client can
	// still observe the outcome.
	EndedLinger   time.Duration `yaml:"ended_linger" env:"ENDED_LINGER"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// Archive configures the SQLite transcript archive.
type Archive struct {
	Enabled bool   `yaml:"enabled" env:"ARCHIVE_ENABLED"`
	Path    string `yaml:"path" env:"ARCHIVE_PATH"`
}

// Config is the complete service configuration.
type Config struct {
	ListenAddr string    `yaml:"listen_addr" env:"LISTEN_ADDR"`
	Providers  Providers `yaml:"providers"`
	Interview  Interview `yaml:"interview"`
	Sessions   Sessions  `yaml:"sessions"`
	Archive    Archive   `yaml:"archive"`
}

func defaults() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		Providers: Providers{
			Order:           []string{ProviderOllama, ProviderGemini},
			AttemptTimeout:  DefaultProviderTimeout,
			OllamaHost:      DefaultOllamaHost,
			OllamaModel:     DefaultOllamaModel,
			LMStudioBaseURL: DefaultLMStudioBaseURL,
			LMStudioModel:   DefaultLMStudioModel,
			GeminiModel:     DefaultGeminiModel,
			AnthropicModel:  DefaultAnthropicModel,
		},
		Interview: Interview{
			MaxCycles:       DefaultMaxCycles,
			MalformedBudget: DefaultMalformedBudget,
		},
		Sessions: Sessions{
			ReconnectWindow: DefaultReconnectWindow,
			EndedLinger:     DefaultEndedLinger,
			SweepInterval:   DefaultSweepInterval,
		},
		Archive: Archive{
			Enabled: true,
			Path:    "interviews.db",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is empty, "config.yaml" is used when present), then environment
// variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for contradictions before wiring.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("provider order must list at least one provider")
	}
	seen := make(map[string]bool, len(c.Providers.Order))
	for _, name := range c.Providers.Order {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case ProviderOllama, ProviderLMStudio, ProviderGemini, ProviderAnthropic:
		default:
			return fmt.Errorf("unknown provider %q in provider order", name)
		}
		if seen[name] {
			return fmt.Errorf("provider %q listed twice in provider order", name)
		}
		seen[name] = true
		if name == ProviderGemini && c.Providers.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when gemini is in the provider order")
		}
		if name == ProviderAnthropic && c.Providers.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when anthropic is in the provider order")
		}
	}
	if c.Providers.AttemptTimeout <= 0 {
		return fmt.Errorf("provider attempt timeout must be positive")
	}
	if c.Interview.MaxCycles <= 0 {
		return fmt.Errorf("max question cycles must be positive")
	}
	if c.Interview.MalformedBudget <= 0 {
		return fmt.Errorf("malformed message budget must be positive")
	}
	if c.Sessions.ReconnectWindow <= 0 || c.Sessions.EndedLinger <= 0 || c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("session eviction durations must be positive")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive path must be set when the archive is enabled")
	}
	return nil
}

// ProviderSpecs maps the configured order to router provider specs.
func (c *Config) ProviderSpecs() []llm.ProviderSpec {
	specs := make([]llm.ProviderSpec, 0, len(c.Providers.Order))
	for _, name := range c.Providers.Order {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ProviderOllama:
			specs = append(specs, llm.ProviderSpec{
				Name:     ProviderOllama,
				Endpoint: c.Providers.OllamaHost,
				Model:    c.Providers.OllamaModel,
			})
		case ProviderLMStudio:
			specs = append(specs, llm.ProviderSpec{
				Name:     ProviderLMStudio,
				Endpoint: c.Providers.LMStudioBaseURL,
				Model:    c.Providers.LMStudioModel,
			})
		case ProviderGemini:
			specs = append(specs, llm.ProviderSpec{
				Name:   ProviderGemini,
				Model:  c.Providers.GeminiModel,
				APIKey: c.Providers.GeminiAPIKey,
			})
		case ProviderAnthropic:
			specs = append(specs, llm.ProviderSpec{
				Name:   ProviderAnthropic,
				Model:  c.Providers.AnthropicModel,
				APIKey: c.Providers.AnthropicAPIKey,
			})
		}
	}
	return specs
}
