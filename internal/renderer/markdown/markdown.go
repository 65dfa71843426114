// Package markdown renders Markdown documents with goldmark.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmrenderer "github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"

	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
)

// Name is the registry name of the Markdown renderer.
const Name = "markdown"

// Options tunes the goldmark pipeline.
type Options struct {
	HardWraps  bool
	Unsafe     bool
	HeadingIDs bool
	// ShowTitle renders a front matter "title" as a leading <h1>.
	ShowTitle bool
}

// DefaultOptions matches what a GitHub README preview looks like.
func DefaultOptions() Options {
	return Options{HeadingIDs: true}
}

// DefaultLanguages and DefaultExtensions are used when configuration names none.
var (
	DefaultLanguages  = []string{"markdown", "md", "gfm", "text.html.markdown"}
	DefaultExtensions = []string{".md", ".markdown", ".mdown", ".mkd"}
)

// Renderer renders Markdown to an HTML fragment.
type Renderer struct {
	name    string
	matcher renderer.Matcher
	opts    Options
	md      goldmark.Markdown
}

var _ renderer.Renderer = (*Renderer)(nil)

// New creates a Markdown renderer enabled for the given matcher.
func New(name string, matcher renderer.Matcher, opts Options) *Renderer {
	if name == "" {
		name = Name
	}

	parserOpts := []parser.Option{}
	if opts.HeadingIDs {
		parserOpts = append(parserOpts, parser.WithAutoHeadingID())
	}
	rendererOpts := []gmrenderer.Option{}
	if opts.HardWraps {
		rendererOpts = append(rendererOpts, gmhtml.WithHardWraps())
	}
	if opts.Unsafe {
		rendererOpts = append(rendererOpts, gmhtml.WithUnsafe())
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(rendererOpts...),
	)
	return &Renderer{name: name, matcher: matcher, opts: opts, md: md}
}

func (r *Renderer) Name() string { return r.name }

func (r *Renderer) IsEnabled(filename, language string) (bool, error) {
	return r.matcher.Match(filename, language), nil
}

// Render converts text to HTML. Front matter is dropped from the output; when
// it does not parse, the whole text is rendered as Markdown.
func (r *Renderer) Render(ctx context.Context, text, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	meta, body, had, err := splitFrontMatter(text)
	if err != nil {
		slog.Debug("Ignoring invalid front matter", logfields.Filename(filename), logfields.Error(err))
		body = text
	}

	var buf bytes.Buffer
	if had && r.opts.ShowTitle {
		if title, ok := meta["title"].(string); ok && title != "" {
			fmt.Fprintf(&buf, "<h1>%s</h1>\n", xhtml.EscapeString(title))
		}
	}
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryRender, "markdown conversion failed").
			WithSeverity(ferrors.SeverityWarning).
			WithContext("filename", filename).
			Build()
	}
	return buf.String(), nil
}
