package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// RendererSnapshot hashes the renderer section. Two configurations with the
// same snapshot build identical registries, so a reload can be skipped.
func (c *Config) RendererSnapshot() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	w := func(parts ...string) {
		h.Write([]byte(strings.Join(parts, "=")))
		h.Write([]byte{0})
	}
	for _, r := range c.Renderers {
		w("name", r.Name)
		w("type", r.Kind())
		w("enabled", fmt.Sprint(r.IsEnabled()))
		w("languages", strings.Join(r.Languages, ","))
		w("extensions", strings.Join(r.Extensions, ","))
		keys := make([]string, 0, len(r.Options))
		for k := range r.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w("option", k, fmt.Sprint(r.Options[k]))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
