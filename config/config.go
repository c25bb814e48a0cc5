// Package config loads genmesh configuration from YAML files and GENMESH_*
// environment variables through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/lifecycle"
)

// EnvPrefix prefixes every environment override (GENMESH_LOGGING_LEVEL, ...).
const EnvPrefix = "GENMESH"

// Config represents the complete genmesh configuration
type Config struct {
	Logging  LoggingConfig   `mapstructure:"logging"`
	Store    StoreConfig     `mapstructure:"store"`
	Defaults QueueConfig     `mapstructure:"defaults"`
	Backends []BackendConfig `mapstructure:"backends"`
	Domains  []DomainConfig  `mapstructure:"domains"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is json or text
	Format string `mapstructure:"format"`
	// AddSource adds the source location to every entry
	AddSource bool `mapstructure:"add_source"`
}

// StoreConfig selects the ResultStore and AuditSink
type StoreConfig struct {
	// Driver is one of memory, sqlite, none
	Driver string `mapstructure:"driver"`
	// Path is the SQLite database file (sqlite driver only)
	Path string `mapstructure:"path"`
}

// QueueConfig holds queue defaults applied to backends that leave a value unset
type QueueConfig struct {
	MaxTries       int `mapstructure:"max_tries"`
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// BackendConfig describes one backend identity
type BackendConfig struct {
	// Name is the identity strategies resolve to
	Name string `mapstructure:"name"`
	// Provider is one of openai, anthropic, mock
	Provider string `mapstructure:"provider"`
	// Kind is the generation kind served (text, speech, image, embedding)
	Kind string `mapstructure:"kind"`
	// Model overrides the provider default model
	Model string `mapstructure:"model"`
	// APIKey is optional; providers fall back to their standard environment variables
	APIKey string `mapstructure:"api_key"`
	// BaseURL points the provider client at a proxy or compatible API
	BaseURL string `mapstructure:"base_url"`
	// Voice is the speech voice (openai speech only)
	Voice string `mapstructure:"voice"`
	// Size is the image size (openai image only)
	Size string `mapstructure:"size"`

	MaxTries       int          `mapstructure:"max_tries"`
	Concurrency    int          `mapstructure:"concurrency"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds"`
	Pricing        core.Pricing `mapstructure:"pricing"`
}

// Timeout returns the per-attempt timeout (0 = disabled).
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// DomainConfig maps a content domain onto backends per generation kind
type DomainConfig struct {
	Name     string            `mapstructure:"name"`
	Language string            `mapstructure:"language"`
	Backends map[string]string `mapstructure:"backends"`
}

// Strategy converts the domain into a lifecycle strategy.
func (d DomainConfig) Strategy() lifecycle.StaticStrategy {
	backends := make(map[core.GenerationKind]string, len(d.Backends))
	for kind, name := range d.Backends {
		backends[core.GenerationKind(strings.ToLower(kind))] = name
	}
	return lifecycle.StaticStrategy{Domain: d.Name, Language: d.Language, Backends: backends}
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Driver: "memory",
			Path:   filepath.Join(ConfigDir(), "genmesh.db"),
		},
		Defaults: QueueConfig{
			MaxTries:       3,
			Concurrency:    2,
			TimeoutSeconds: 120,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.add_source", defaults.Logging.AddSource)

	v.SetDefault("store.driver", defaults.Store.Driver)
	v.SetDefault("store.path", defaults.Store.Path)

	v.SetDefault("defaults.max_tries", defaults.Defaults.MaxTries)
	v.SetDefault("defaults.concurrency", defaults.Defaults.Concurrency)
	v.SetDefault("defaults.timeout_seconds", defaults.Defaults.TimeoutSeconds)
}

// Load reads the configuration file at path (or config.yaml in ConfigDir when
// path is empty and the file exists), applies GENMESH_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "genmesh")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".genmesh"
	}
	return filepath.Join(home, ".config", "genmesh")
}

// ConfigFile returns the path to the default config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
