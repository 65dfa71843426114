package config

import (
	"fmt"
	"time"
)

// Default returns a complete configuration: markdown, html and plaintext
// renderers in that order, and a server on localhost.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Server:  ServerConfig{Addr: "127.0.0.1:8765", LiveReload: true},
		Metrics: MetricsConfig{Path: "/metrics"},
		Watch: WatchConfig{
			Languages: map[string]string{
				".md":       "markdown",
				".markdown": "markdown",
				".html":     "html",
				".htm":      "html",
				".txt":      "text",
			},
			Debounce: 300 * time.Millisecond,
		},
		Cache: CacheConfig{
			MaxEntries:    512,
			MaxAge:        24 * time.Hour,
			PruneInterval: 10 * time.Minute,
		},
		Renderers: []RendererConfig{
			{Name: "markdown"},
			{Name: "html"},
			{Name: "plaintext"},
		},
	}
}

// ConfigDefaultApplier fills zero values for one configuration section.
type ConfigDefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration sections.
type CompositeDefaultApplier struct {
	appliers []ConfigDefaultApplier
}

func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []ConfigDefaultApplier{
			&LoggingDefaultApplier{},
			&ServerDefaultApplier{},
			&WatchDefaultApplier{},
			&CacheDefaultApplier{},
			&RendererDefaultApplier{},
		},
	}
}

func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

type LoggingDefaultApplier struct{}

func (LoggingDefaultApplier) Domain() string { return "logging" }

func (LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

type ServerDefaultApplier struct{}

func (ServerDefaultApplier) Domain() string { return "server" }

func (ServerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = Default().Server.Addr
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return nil
}

type WatchDefaultApplier struct{}

func (WatchDefaultApplier) Domain() string { return "watch" }

func (WatchDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Watch.Languages == nil {
		cfg.Watch.Languages = Default().Watch.Languages
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = Default().Watch.Debounce
	}
	return nil
}

type CacheDefaultApplier struct{}

func (CacheDefaultApplier) Domain() string { return "cache" }

func (CacheDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = Default().Cache.MaxEntries
	}
	if cfg.Cache.MaxAge > 0 && cfg.Cache.PruneInterval == 0 {
		cfg.Cache.PruneInterval = Default().Cache.PruneInterval
	}
	return nil
}

type RendererDefaultApplier struct{}

func (RendererDefaultApplier) Domain() string { return "renderers" }

// ApplyDefaults keeps an explicit empty list: it disables rendering.
func (RendererDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Renderers == nil {
		cfg.Renderers = Default().Renderers
	}
	return nil
}
