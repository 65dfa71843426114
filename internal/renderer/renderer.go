// Package renderer holds the ordered set of renderer plugins and dispatches
// text to the first one that accepts it.
package renderer

import (
	"context"

	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
)

// Renderer converts document text to an HTML fragment for the filenames and
// languages it accepts.
type Renderer interface {
	// Name identifies the renderer in logs and metrics.
	Name() string
	// IsEnabled reports whether the renderer handles the given pair. filename
	// may be empty for unsaved documents.
	IsEnabled(filename, language string) (bool, error)
	Render(ctx context.Context, text, filename string) (string, error)
}

// Outcome tags the result of a dispatch.
type Outcome int

const (
	// OutcomeNoRenderer means no registered renderer produced output.
	OutcomeNoRenderer Outcome = iota
	OutcomeRendered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRendered:
		return "rendered"
	case OutcomeNoRenderer:
		return "no_renderer"
	default:
		return "unknown"
	}
}

// Result is the outcome of RenderText.
type Result struct {
	Outcome  Outcome
	HTML     string
	Renderer string
}

// ErrNoRendererAvailable is the error form of OutcomeNoRenderer.
var ErrNoRendererAvailable error = ferrors.NotFoundError("no renderer available").Build()

// Rendered reports whether the result carries HTML.
func (r Result) Rendered() bool {
	return r.Outcome == OutcomeRendered
}

// Err returns ErrNoRendererAvailable for a no-match result and nil otherwise.
func (r Result) Err() error {
	if r.Outcome == OutcomeRendered {
		return nil
	}
	return ErrNoRendererAvailable
}
