package config

import (
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
)

// RendererTypes lists the implementations a renderer entry may select.
var RendererTypes = []string{"markdown", "html", "plaintext"}

// Validate checks cross-field constraints. It reports the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return invalid("server.addr", "must not be empty")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path", "must start with /")
	}
	if c.Cache.MaxEntries < 0 {
		return invalid("cache.max_entries", "must be positive")
	}
	if c.Cache.MaxAge < 0 {
		return invalid("cache.max_age", "must not be negative")
	}
	if c.Cache.PruneInterval < 0 {
		return invalid("cache.prune_interval", "must not be negative")
	}
	for ext, lang := range c.Watch.Languages {
		if !strings.HasPrefix(ext, ".") || strings.TrimSpace(lang) == "" {
			return invalid("watch.languages", fmt.Sprintf("entry %q: %q must map a .ext to a language", ext, lang))
		}
	}

	seen := make(map[string]struct{}, len(c.Renderers))
	for i, r := range c.Renderers {
		field := fmt.Sprintf("renderers[%d]", i)
		if strings.TrimSpace(r.Name) == "" {
			return invalid(field+".name", "must not be empty")
		}
		if _, dup := seen[r.Name]; dup {
			return invalid(field+".name", fmt.Sprintf("duplicate renderer %q", r.Name))
		}
		seen[r.Name] = struct{}{}
		if !knownRendererType(r.Kind()) {
			return invalid(field+".type", fmt.Sprintf("unknown renderer type %q (valid: %s)", r.Kind(), strings.Join(RendererTypes, ", ")))
		}
	}
	return nil
}

func knownRendererType(kind string) bool {
	for _, t := range RendererTypes {
		if t == kind {
			return true
		}
	}
	return false
}

func invalid(field, msg string) error {
	return ferrors.ConfigError(field + " " + msg).WithContext("field", field).Build()
}
