package renderer

import (
	"log/slog"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/metrics"
)

// Registry is the ordered list of renderers. Earlier registrations win.
//
// The list is copy-on-write: every mutation builds a new slice and swaps it
// in, so a dispatch that already took a snapshot keeps using it. Concurrent
// mutations (Register racing Reload) are the caller's to serialize; reads
// never need to be.
type Registry struct {
	renderers atomic.Pointer[[]Renderer]
	recorder  metrics.Recorder
}

// NewRegistry creates a registry holding renderers in the given order.
func NewRegistry(renderers ...Renderer) *Registry {
	r := &Registry{recorder: metrics.NoopRecorder{}}
	r.Reload(renderers)
	return r
}

// SetRecorder injects a metrics recorder for dispatch outcomes (optional).
func (r *Registry) SetRecorder(rec metrics.Recorder) {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	r.recorder = rec
}

// Register appends a renderer with the lowest priority. Duplicates are kept.
func (r *Registry) Register(rd Renderer) {
	if rd == nil {
		return
	}
	cur := r.Renderers()
	next := make([]Renderer, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, rd)
	r.renderers.Store(&next)
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.renderers.Store(&[]Renderer{})
}

// Reload replaces the whole list in one step. Nil entries are skipped.
func (r *Registry) Reload(renderers []Renderer) {
	next := make([]Renderer, 0, len(renderers))
	for _, rd := range renderers {
		if rd != nil {
			next = append(next, rd)
		}
	}
	r.renderers.Store(&next)
	slog.Debug("Renderer registry loaded", slog.Int("renderers", len(next)))
}

// Renderers returns the current snapshot. Callers must not modify it.
func (r *Registry) Renderers() []Renderer {
	if p := r.renderers.Load(); p != nil {
		return *p
	}
	return nil
}

// Len returns the number of registered renderers.
func (r *Registry) Len() int {
	return len(r.Renderers())
}

// FindEnabled returns the first renderer enabled for the pair, or nil when none
// is. An enablement check that fails stops the search and is returned.
func (r *Registry) FindEnabled(filename, language string) (Renderer, error) {
	for _, rd := range r.Renderers() {
		ok, err := rd.IsEnabled(filename, language)
		if err != nil {
			return nil, enablementError(rd, filename, language, err)
		}
		if ok {
			return rd, nil
		}
	}
	return nil, nil
}

// HasEnabled reports whether any renderer accepts the pair. A failing
// enablement check counts as "not enabled" here.
func (r *Registry) HasEnabled(filename, language string) bool {
	rd, err := r.FindEnabled(filename, language)
	if err != nil {
		slog.Warn("Renderer enablement check failed", logfields.Filename(filename), logfields.Language(language), logfields.Error(err))
		return false
	}
	return rd != nil
}

func enablementError(rd Renderer, filename, language string, cause error) error {
	return ferrors.RendererError("renderer enablement check failed").
		WithCause(cause).
		WithContext("renderer", rd.Name()).
		WithContext("filename", filename).
		WithContext("language", language).
		Build()
}
