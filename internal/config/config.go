// Package config loads the server configuration from YAML with environment
// variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vantagelabs/relay/internal/agent"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Logging  LoggingConfig        `yaml:"logging"`
	Provider ProviderConfig       `yaml:"provider"`
	Agent    agent.LoopConfig     `yaml:"agent"`
	Executor agent.ExecutorConfig `yaml:"executor"`
	Storage  StorageConfig        `yaml:"storage"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProviderConfig selects and configures the LLM backend.
type ProviderConfig struct {
	// Name is "anthropic" or "openai".
	Name string `yaml:"name"`

	// APIKey usually comes from the environment via ${VAR} expansion.
	APIKey string `yaml:"api_key"`

	Model string `yaml:"model"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Default returns a configuration with working defaults for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Provider: ProviderConfig{Name: "anthropic", APIKey: os.Getenv("ANTHROPIC_API_KEY")},
		Storage:  StorageConfig{Path: "relay.db"},
	}
}

// Load reads the file at path, expands ${VAR} and $VAR references from the
// environment, and unmarshals over defaults. A missing file is not an error;
// defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.validate()
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai":
	case "":
		return fmt.Errorf("config: provider.name is required")
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider.Name)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("config: storage.path is required")
	}
	return nil
}
