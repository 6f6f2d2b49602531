// Package config loads parley configuration from ~/.parley/config.yaml with
// environment variable overrides for API keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"parley/session"
)

// ValidProviders lists the supported engine providers.
var ValidProviders = []string{"anthropic", "openai"}

// Config holds all parley configuration.
type Config struct {
	// Engine selection and model.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`

	// Default working directory for new sessions.
	WorkingDir string `yaml:"working_dir"`

	// Logging.
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// Web frontend listen address.
	WebAddr string `yaml:"web_addr"`

	// Streaming delta throttle in milliseconds; 0 keeps the default.
	ThrottleMs int `yaml:"throttle_ms"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Provider: "anthropic",
		LogLevel: "info",
		WebAddr:  "127.0.0.1:8754",
	}
}

// Path returns the config file location under the parley data dir.
func Path() string {
	return filepath.Join(session.DataDir(), "config.yaml")
}

// Load reads path, falling back to defaults when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides fills the API key from the provider's conventional
// environment variable when the file carries none.
func (c *Config) applyEnvOverrides() {
	if c.APIKey != "" {
		return
	}
	switch c.Provider {
	case "anthropic":
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks provider and derived values.
func (c *Config) Validate() error {
	valid := false
	for _, p := range ValidProviders {
		if c.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid provider: %s (valid: %v)", c.Provider, ValidProviders)
	}
	if c.ThrottleMs < 0 {
		return fmt.Errorf("throttle_ms must not be negative")
	}
	return nil
}

// Throttle returns the configured delta throttle, or 0 when unset.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.ThrottleMs) * time.Millisecond
}
