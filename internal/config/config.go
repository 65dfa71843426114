// Package config loads the YAML configuration for omnipreview.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "omnipreview.yaml"

// Config represents the application configuration.
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Server    ServerConfig     `yaml:"server"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Watch     WatchConfig      `yaml:"watch"`
	Cache     CacheConfig      `yaml:"cache"`
	Renderers []RendererConfig `yaml:"renderers"`
}

type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// ServerConfig configures the preview HTTP server.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	LiveReload bool   `yaml:"live_reload"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig configures the file-watching document source.
type WatchConfig struct {
	Paths []string `yaml:"paths"`
	// Lazy only re-renders files that were already previewed once.
	Lazy bool `yaml:"lazy"`
	// Languages maps a file extension (".md") to a language tag ("markdown").
	Languages map[string]string `yaml:"languages"`
	// Debounce delays configuration reloads after a config file change.
	Debounce time.Duration `yaml:"debounce"`
}

// CacheConfig bounds the in-memory preview cache.
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries"`
	MaxAge        time.Duration `yaml:"max_age"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// RendererConfig declares one renderer. The list order is the dispatch
// priority.
type RendererConfig struct {
	Name string `yaml:"name"`
	// Type selects the implementation; it defaults to Name.
	Type       string         `yaml:"type,omitempty"`
	Enabled    *bool          `yaml:"enabled,omitempty"`
	Languages  []string       `yaml:"languages,omitempty"`
	Extensions []string       `yaml:"extensions,omitempty"`
	Options    map[string]any `yaml:"options,omitempty"`
}

// IsEnabled reports whether the renderer should be registered. Unset means yes.
func (r RendererConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Kind returns the implementation type.
func (r RendererConfig) Kind() string {
	if r.Type != "" {
		return r.Type
	}
	return r.Name
}

// Load reads, expands and validates the configuration file at configPath.
//
// Values missing from the file keep their defaults. ${VAR} references are
// expanded from the environment after .env files have been loaded.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFoundError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, ferrors.FileSystemError("failed to read config file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse decodes YAML content on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, ferrors.ConfigError("failed to parse config").WithCause(err).Build()
	}
	if err := NewDefaultApplier().ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	data, err := yaml.Marshal(Example())
	if err != nil {
		return ferrors.InternalError("failed to marshal example config").WithCause(err).Build()
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return ferrors.FileSystemError("failed to write config file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}

// Example is the configuration written by Init.
func Example() *Config {
	cfg := Default()
	cfg.Watch.Paths = []string{"./docs"}
	cfg.Metrics.Enabled = true
	cfg.Renderers[0].Options = map[string]any{"hard_wraps": false, "unsafe": false}
	return cfg
}
