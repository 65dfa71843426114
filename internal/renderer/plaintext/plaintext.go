// Package plaintext wraps text in an escaped <pre> block.
package plaintext

import (
	"context"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/omnipreview/internal/renderer"
)

const Name = "plaintext"

var (
	DefaultLanguages  = []string{"text", "plain", "text.plain"}
	DefaultExtensions = []string{".txt", ".text", ".log"}
)

type Renderer struct {
	name    string
	matcher renderer.Matcher
}

var _ renderer.Renderer = (*Renderer)(nil)

func New(name string, matcher renderer.Matcher) *Renderer {
	if name == "" {
		name = Name
	}
	return &Renderer{name: name, matcher: matcher}
}

func (r *Renderer) Name() string { return r.name }

func (r *Renderer) IsEnabled(filename, language string) (bool, error) {
	return r.matcher.Match(filename, language), nil
}

func (r *Renderer) Render(ctx context.Context, text, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return `<pre class="plaintext">` + html.EscapeString(text) + "</pre>", nil
}
