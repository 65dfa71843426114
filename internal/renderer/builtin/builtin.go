// Package builtin turns renderer configuration into registry entries.
package builtin

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/omnipreview/internal/config"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
	"git.home.luguber.info/inful/omnipreview/internal/renderer/htmldoc"
	"git.home.luguber.info/inful/omnipreview/internal/renderer/markdown"
	"git.home.luguber.info/inful/omnipreview/internal/renderer/plaintext"
)

type factory func(rc config.RendererConfig, m renderer.Matcher) (renderer.Renderer, error)

type kind struct {
	languages  []string
	extensions []string
	build      factory
}

var kinds = map[string]kind{
	"markdown":  {markdown.DefaultLanguages, markdown.DefaultExtensions, newMarkdown},
	"html":      {htmldoc.DefaultLanguages, htmldoc.DefaultExtensions, newHTML},
	"plaintext": {plaintext.DefaultLanguages, plaintext.DefaultExtensions, newPlaintext},
}

// Load builds renderers in configuration order, skipping disabled entries. An
// entry without languages and extensions gets its type's defaults.
func Load(entries []config.RendererConfig) ([]renderer.Renderer, error) {
	out := make([]renderer.Renderer, 0, len(entries))
	for _, rc := range entries {
		if !rc.IsEnabled() {
			slog.Debug("Skipping disabled renderer", logfields.Renderer(rc.Name))
			continue
		}
		k, ok := kinds[rc.Kind()]
		if !ok {
			return nil, ferrors.ConfigError("unknown renderer type").
				WithContext("renderer", rc.Name).
				WithContext("type", rc.Kind()).
				Build()
		}

		langs, exts := rc.Languages, rc.Extensions
		if len(langs) == 0 && len(exts) == 0 {
			langs, exts = k.languages, k.extensions
		}
		rd, err := k.build(rc, renderer.NewMatcher(langs, exts))
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, nil
}

func newMarkdown(rc config.RendererConfig, m renderer.Matcher) (renderer.Renderer, error) {
	opts := markdown.DefaultOptions()
	var err error
	if opts.HardWraps, err = boolOption(rc, "hard_wraps", opts.HardWraps); err != nil {
		return nil, err
	}
	if opts.Unsafe, err = boolOption(rc, "unsafe", opts.Unsafe); err != nil {
		return nil, err
	}
	if opts.HeadingIDs, err = boolOption(rc, "heading_ids", opts.HeadingIDs); err != nil {
		return nil, err
	}
	if opts.ShowTitle, err = boolOption(rc, "show_title", opts.ShowTitle); err != nil {
		return nil, err
	}
	return markdown.New(rc.Name, m, opts), nil
}

func newHTML(rc config.RendererConfig, m renderer.Matcher) (renderer.Renderer, error) {
	keep, err := boolOption(rc, "keep_scripts", false)
	if err != nil {
		return nil, err
	}
	return htmldoc.New(rc.Name, m, keep), nil
}

func newPlaintext(rc config.RendererConfig, m renderer.Matcher) (renderer.Renderer, error) {
	return plaintext.New(rc.Name, m), nil
}

func boolOption(rc config.RendererConfig, key string, def bool) (bool, error) {
	raw, ok := rc.Options[key]
	if !ok {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, ferrors.ConfigError(fmt.Sprintf("renderer option %s must be a boolean", key)).
			WithContext("renderer", rc.Name).
			WithContext("value", raw).
			Build()
	}
	return b, nil
}
