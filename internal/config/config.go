// Package config loads and validates the sofia daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the sofia daemon.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Providers ProvidersConfig `yaml:"providers"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	History   HistoryConfig   `yaml:"history"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TransportConfig configures the WhatsApp session.
type TransportConfig struct {
	// SessionPath is the SQLite database holding the whatsmeow device store.
	SessionPath string `yaml:"session_path"`

	// CountryCode is prepended to bare phone numbers that lack one.
	CountryCode string `yaml:"country_code"`
}

// ProvidersConfig configures the reply generation providers.
type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`

	// Preferred selects the provider tried first ("anthropic" or "openai").
	Preferred string `yaml:"preferred"`

	// FailoverEnabled allows falling back to the other provider when the
	// preferred one fails. Requires the fallback provider to be configured.
	FailoverEnabled bool `yaml:"failover_enabled"`

	// MaxTokens and Temperature are the generation defaults applied when a
	// request does not override them.
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// ProviderConfig holds per-provider credentials and model selection.
type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DeliveryConfig holds the anti-abuse pacing knobs for outbound delivery.
type DeliveryConfig struct {
	// TickInterval is how often the dispatcher wakes up. At most one
	// envelope is transmitted per tick.
	TickInterval time.Duration `yaml:"tick_interval"`

	// MaxPerHour caps sends within each fixed one-hour window.
	MaxPerHour int `yaml:"max_per_hour"`

	// MinDelay and MaxDelay bound the randomized pause between sends.
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`

	// TypingDelay is how long the composing presence is held before a send.
	TypingDelay time.Duration `yaml:"typing_delay"`

	// WorkStartHour and WorkEndHour bound the local-time delivery window.
	// Sends happen when hour >= start and hour < end.
	WorkStartHour int `yaml:"work_start_hour"`
	WorkEndHour   int `yaml:"work_end_hour"`

	// MaxAttempts is the number of transmission attempts before an
	// envelope is dropped.
	MaxAttempts int `yaml:"max_attempts"`

	// DedupTTL is how long an inbound event key blocks reprocessing.
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// HistoryConfig configures the conversation store.
type HistoryConfig struct {
	// Path is the SQLite database holding contacts and message records.
	Path string `yaml:"path"`

	// ContextTurns is how many prior messages are included as context
	// when generating a reply.
	ContextTurns int `yaml:"context_turns"`
}

// GatewayConfig configures the HTTP admin surface.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
// Unlike a file-based config, the admin gateway is on so the status
// command works against a bare `sofia serve`.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	cfg.Gateway.Enabled = true
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Transport.SessionPath == "" {
		cfg.Transport.SessionPath = "~/.sofia/session.db"
	}
	if cfg.Transport.CountryCode == "" {
		cfg.Transport.CountryCode = "55"
	}
	if cfg.Providers.Preferred == "" {
		cfg.Providers.Preferred = "anthropic"
	}
	if cfg.Providers.Anthropic.Model == "" {
		cfg.Providers.Anthropic.Model = "claude-3-haiku-20240307"
	}
	if cfg.Providers.OpenAI.Model == "" {
		cfg.Providers.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Providers.MaxTokens == 0 {
		cfg.Providers.MaxTokens = 1024
	}
	if cfg.Providers.Temperature == 0 {
		cfg.Providers.Temperature = 0.7
	}
	if cfg.Delivery.TickInterval == 0 {
		cfg.Delivery.TickInterval = 5 * time.Second
	}
	if cfg.Delivery.MaxPerHour == 0 {
		cfg.Delivery.MaxPerHour = 50
	}
	if cfg.Delivery.MinDelay == 0 {
		cfg.Delivery.MinDelay = 3 * time.Second
	}
	if cfg.Delivery.MaxDelay == 0 {
		cfg.Delivery.MaxDelay = 8 * time.Second
	}
	if cfg.Delivery.TypingDelay == 0 {
		cfg.Delivery.TypingDelay = 2 * time.Second
	}
	if cfg.Delivery.WorkStartHour == 0 {
		cfg.Delivery.WorkStartHour = 8
	}
	if cfg.Delivery.WorkEndHour == 0 {
		cfg.Delivery.WorkEndHour = 22
	}
	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = 3
	}
	if cfg.Delivery.DedupTTL == 0 {
		cfg.Delivery.DedupTTL = 60 * time.Second
	}
	if cfg.History.Path == "" {
		cfg.History.Path = "~/.sofia/history.db"
	}
	if cfg.History.ContextTurns == 0 {
		cfg.History.ContextTurns = 10
	}
	if cfg.Gateway.Addr == "" {
		cfg.Gateway.Addr = "127.0.0.1:8520"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnvOverrides lets API keys come from the environment without being
// present in the config file.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = key
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Providers.Preferred != "anthropic" && c.Providers.Preferred != "openai" {
		return fmt.Errorf("providers.preferred must be \"anthropic\" or \"openai\", got %q", c.Providers.Preferred)
	}
	if c.Delivery.MinDelay > c.Delivery.MaxDelay {
		return fmt.Errorf("delivery.min_delay (%s) must not exceed delivery.max_delay (%s)", c.Delivery.MinDelay, c.Delivery.MaxDelay)
	}
	if c.Delivery.WorkStartHour < 0 || c.Delivery.WorkStartHour > 23 {
		return fmt.Errorf("delivery.work_start_hour must be within [0,23], got %d", c.Delivery.WorkStartHour)
	}
	if c.Delivery.WorkEndHour < 1 || c.Delivery.WorkEndHour > 24 {
		return fmt.Errorf("delivery.work_end_hour must be within [1,24], got %d", c.Delivery.WorkEndHour)
	}
	if c.Delivery.WorkStartHour >= c.Delivery.WorkEndHour {
		return fmt.Errorf("delivery.work_start_hour must be before delivery.work_end_hour")
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery.max_attempts must be at least 1")
	}
	return nil
}
