// Package commands implements the omnipreview subcommands.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/omnipreview/internal/config"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/observability"
)

// Global is shared state handed to every subcommand.
type Global struct {
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${config_path}"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve     ServeCmd     `cmd:"" help:"Watch documents and serve live previews"`
	Render    RenderCmd    `cmd:"" help:"Render a single file to stdout"`
	Renderers RenderersCmd `cmd:"" help:"List configured renderers in priority order"`
	Init      InitCmd      `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; commands that load a configuration
// replace this logger with the configured one.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := "info"
	if c.Verbose {
		level = "debug"
	}
	observability.SetupLogger(os.Stderr, level, "text")
	return nil
}

// LoadConfig reads the configuration file. A missing file at the default
// location yields the built-in defaults; an explicit path must exist.
func (c *CLI) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err == nil {
		return cfg, nil
	}
	if c.Config == config.DefaultPath && ferrors.HasCategory(err, ferrors.CategoryNotFound) {
		slog.Debug("No configuration file, using defaults", logfields.Path(c.Config))
		return config.Default(), nil
	}
	return nil, err
}

func (c *CLI) setupLogging(cfg *config.Config) {
	level := string(cfg.Logging.Level)
	if c.Verbose {
		level = "debug"
	}
	observability.SetupLogger(os.Stderr, level, string(cfg.Logging.Format))
}

func configExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
