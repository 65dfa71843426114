package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/metrics"
)

// RenderText renders text with the first enabled renderer that succeeds.
//
// A renderer whose Render fails (or panics) is logged and skipped. A renderer
// whose IsEnabled fails aborts the dispatch with that error. When nothing
// renders the result is OutcomeNoRenderer with a nil error.
func (r *Registry) RenderText(ctx context.Context, filename, language, text string) (Result, error) {
	for _, rd := range r.Renderers() {
		enabled, err := rd.IsEnabled(filename, language)
		if err != nil {
			r.recorder.IncRenderOutcome(rd.Name(), metrics.OutcomeEnablementFailed)
			return Result{}, enablementError(rd, filename, language, err)
		}
		if !enabled {
			continue
		}

		start := time.Now()
		html, err := safeRender(ctx, rd, text, filename)
		if err != nil {
			r.recorder.IncRenderOutcome(rd.Name(), metrics.OutcomeRenderFailed)
			slog.Error("Renderer failed, trying next candidate",
				logfields.Renderer(rd.Name()),
				logfields.Filename(filename),
				logfields.Language(language),
				logfields.Error(err))
			continue
		}

		r.recorder.ObserveRenderDuration(rd.Name(), time.Since(start))
		r.recorder.IncRenderOutcome(rd.Name(), metrics.OutcomeRendered)
		return Result{Outcome: OutcomeRendered, HTML: html, Renderer: rd.Name()}, nil
	}

	r.recorder.IncRenderOutcome("", metrics.OutcomeNoRenderer)
	return Result{Outcome: OutcomeNoRenderer}, nil
}

func safeRender(ctx context.Context, rd Renderer, text, filename string) (html string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = ferrors.RenderError("renderer panicked").
				WithCause(fmt.Errorf("%v", p)).
				WithContext("renderer", rd.Name()).
				Build()
		}
	}()

	html, err = rd.Render(ctx, text, filename)
	if err != nil {
		if _, ok := ferrors.AsClassified(err); !ok {
			err = ferrors.WrapError(err, ferrors.CategoryRender, "render failed").
				WithSeverity(ferrors.SeverityWarning).
				WithContext("renderer", rd.Name()).
				Build()
		}
		return "", err
	}
	return html, nil
}
