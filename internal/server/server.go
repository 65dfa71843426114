// Package server serves rendered previews over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/omnipreview/internal/cache"
	"git.home.luguber.info/inful/omnipreview/internal/events"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/preview"
	smw "git.home.luguber.info/inful/omnipreview/internal/server/middleware"
	"git.home.luguber.info/inful/omnipreview/internal/source"
)

// Previewer is the coordinator as seen by the server.
type Previewer interface {
	EnqueueViewSnapshot(ctx context.Context, snap preview.Snapshot, onlyIfAlreadyCached, immediate bool) error
}

// WorkerStatus reports the state of the render worker.
type WorkerStatus interface {
	State() preview.State
	Pending() int
}

// Options configures the server.
type Options struct {
	Addr       string
	LiveReload bool
	// MetricsPath and MetricsHandler mount the metrics endpoint when both are set.
	MetricsPath    string
	MetricsHandler http.Handler
	Version        string
}

// Deps are the components the handlers read from.
type Deps struct {
	Previewer Previewer
	Documents *source.DocumentTable
	Cache     cache.Store
	Worker    WorkerStatus
	Bus       *events.Bus
}

// Server is the preview HTTP server.
type Server struct {
	opts         Options
	deps         Deps
	hub          *LiveReloadHub
	errorAdapter *ferrors.HTTPErrorAdapter
	startedAt    time.Time

	httpServer *http.Server
	listener   net.Listener
	cancelHub  context.CancelFunc
	serveErr   chan error
}

func New(opts Options, deps Deps) *Server {
	s := &Server{
		opts:         opts,
		deps:         deps,
		errorAdapter: ferrors.NewHTTPErrorAdapter(slog.Default()),
		startedAt:    time.Now(),
		serveErr:     make(chan error, 1),
	}
	if opts.LiveReload {
		s.hub = NewLiveReloadHub()
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /documents", s.handleDocuments)
	mux.HandleFunc("GET /preview/{id}", s.handlePreview)
	mux.HandleFunc("GET /fragment/{id}", s.handleFragment)
	if s.hub != nil {
		mux.Handle("GET /livereload", s.hub)
	}
	if s.opts.MetricsPath != "" && s.opts.MetricsHandler != nil {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.MetricsHandler)
	}
	return smw.Chain(slog.Default(), s.errorAdapter)(mux)
}

// Start binds the listener and serves in the background. Binding errors are
// returned directly.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return ferrors.RuntimeError("failed to bind preview server").
			WithCause(err).
			WithContext("addr", s.opts.Addr).
			Build()
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.hub != nil && s.deps.Bus != nil {
		hubCtx, cancel := context.WithCancel(context.Background())
		s.cancelHub = cancel
		updates, unsubscribe := events.Subscribe[events.EntryUpdated](s.deps.Bus, 64)
		go func() {
			defer unsubscribe()
			s.hub.Run(hubCtx, updates)
		}()
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Preview server stopped", slog.String("error", err.Error()))
			s.serveErr <- err
		}
		close(s.serveErr)
	}()
	slog.Info("Preview server listening", slog.String("addr", ln.Addr().String()), slog.Bool("live_reload", s.hub != nil))
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

// Errors delivers a fatal serve error, then closes.
func (s *Server) Errors() <-chan error { return s.serveErr }

// Shutdown disconnects live-reload clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Shutdown()
	}
	if s.cancelHub != nil {
		s.cancelHub()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
