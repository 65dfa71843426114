// Package htmldoc previews HTML documents by extracting their body.
package htmldoc

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
)

const Name = "html"

var (
	DefaultLanguages  = []string{"html", "text.html.basic", "xhtml"}
	DefaultExtensions = []string{".html", ".htm", ".xhtml"}
)

// Renderer returns the inner HTML of a document's <body>.
type Renderer struct {
	name        string
	matcher     renderer.Matcher
	keepScripts bool
}

var _ renderer.Renderer = (*Renderer)(nil)

func New(name string, matcher renderer.Matcher, keepScripts bool) *Renderer {
	if name == "" {
		name = Name
	}
	return &Renderer{name: name, matcher: matcher, keepScripts: keepScripts}
}

func (r *Renderer) Name() string { return r.name }

func (r *Renderer) IsEnabled(filename, language string) (bool, error) {
	return r.matcher.Match(filename, language), nil
}

func (r *Renderer) Render(ctx context.Context, text, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryRender, "html parse failed").
			WithSeverity(ferrors.SeverityWarning).
			WithContext("filename", filename).
			Build()
	}

	body := findBody(doc)
	if body == nil {
		return "", nil
	}
	if !r.keepScripts {
		removeElements(body, atom.Script)
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryRender, "html render failed").
				WithSeverity(ferrors.SeverityWarning).
				WithContext("filename", filename).
				Build()
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func removeElements(n *html.Node, a atom.Atom) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.DataAtom == a {
			n.RemoveChild(c)
		} else {
			removeElements(c, a)
		}
		c = next
	}
}
