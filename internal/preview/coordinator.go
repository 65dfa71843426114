package preview

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/omnipreview/internal/cache"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/metrics"
	"git.home.luguber.info/inful/omnipreview/internal/observability"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
)

// Snapshot is the state of a document as the host sees it.
type Snapshot struct {
	DocumentID string
	// Filename is the full path; empty for unsaved documents.
	Filename string
	Language string
	Text     string
}

// Coordinator connects document hosts to the renderer registry and the cache.
//
// A document is "opted in" once a preview was requested for it. Lazy hosts
// submit with onlyIfAlreadyCached so that edits to documents nobody previews
// cost nothing.
type Coordinator struct {
	registry *renderer.Registry
	store    cache.Store
	worker   *Worker
	recorder metrics.Recorder

	mu      sync.Mutex
	optedIn map[string]struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder sets the metrics recorder shared by the worker and registry.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates a coordinator. Call Start before submitting queued work.
func New(registry *renderer.Registry, store cache.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		store:    store,
		recorder: metrics.NoopRecorder{},
		optedIn:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry.SetRecorder(c.recorder)
	c.worker = NewWorker(c.render, WithWorkerRecorder(c.recorder))
	return c
}

func (c *Coordinator) Start() { c.worker.Start() }

// Stop shuts the worker down. No cache write happens after it returns.
func (c *Coordinator) Stop() { c.worker.Stop() }

// Worker exposes the worker for diagnostics.
func (c *Coordinator) Worker() *Worker { return c.worker }

// EnqueueViewSnapshot submits a document for rendering.
//
// With onlyIfAlreadyCached the call is a no-op unless the document already
// has a cache entry or was opted in before. Otherwise the document becomes
// opted in and the snapshot is handed to the worker.
func (c *Coordinator) EnqueueViewSnapshot(ctx context.Context, snap Snapshot, onlyIfAlreadyCached, immediate bool) error {
	if snap.DocumentID == "" {
		return ferrors.ValidationError("document id is required").Build()
	}

	c.mu.Lock()
	_, opted := c.optedIn[snap.DocumentID]
	if onlyIfAlreadyCached && !opted && !c.store.Exists(snap.DocumentID) {
		c.mu.Unlock()
		return nil
	}
	c.optedIn[snap.DocumentID] = struct{}{}
	c.mu.Unlock()

	return c.worker.Enqueue(ctx, Request{
		DocumentID: snap.DocumentID,
		Filename:   snap.Filename,
		Language:   snap.Language,
		Text:       snap.Text,
	}, immediate)
}

// IsOptedIn reports whether a preview was ever requested for the document.
func (c *Coordinator) IsOptedIn(documentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.optedIn[documentID]
	return ok
}

// Forget drops the opt-in flag and the cache entry of a closed document. A
// request for it that is already pending may still be rendered.
func (c *Coordinator) Forget(documentID string) {
	c.mu.Lock()
	delete(c.optedIn, documentID)
	c.mu.Unlock()
	c.store.Remove(documentID)
}

// Reload swaps the renderer list. Dispatches already running finish with the
// previous list; the next dispatch sees the new one.
func (c *Coordinator) Reload(renderers []renderer.Renderer) {
	c.registry.Reload(renderers)
	slog.Info("Renderers reloaded", slog.Int("renderers", len(renderers)))
}

// HasRendererFor reports whether any renderer would accept the document.
func (c *Coordinator) HasRendererFor(filename, language string) bool {
	return c.registry.HasEnabled(filename, language)
}

// LanguageFromScope extracts a language tag from an editor scope name.
func (c *Coordinator) LanguageFromScope(scope string) string {
	return renderer.LanguageFromScope(scope)
}

// render is the worker's ProcessFunc.
func (c *Coordinator) render(ctx context.Context, req Request) error {
	res, err := c.registry.RenderText(ctx, req.Filename, req.Language, req.Text)
	if err != nil {
		return err
	}
	if !res.Rendered() {
		observability.DebugContext(ctx, "No renderer available",
			logfields.Filename(req.Filename),
			logfields.Language(req.Language))
		return nil
	}

	entry := cache.Entry{
		Filename: filepath.Base(req.Filename),
		Dirname:  filepath.Dir(req.Filename),
		HTMLPart: res.HTML,
	}
	if err := c.store.SetEntry(req.DocumentID, entry); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryCache, "failed to store preview").
			WithContext("document_id", req.DocumentID).
			Build()
	}
	observability.DebugContext(observability.WithRenderer(ctx, res.Renderer), "Preview rendered",
		logfields.Filename(req.Filename))
	return nil
}
