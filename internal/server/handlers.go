package server

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/omnipreview/internal/cache"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/observability"
)

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status       string  `json:"status"`
	Version      string  `json:"version,omitempty"`
	Uptime       float64 `json:"uptime"`
	Documents    int     `json:"documents"`
	CacheEntries int     `json:"cache_entries"`
	WorkerState  string  `json:"worker_state,omitempty"`
	Pending      int     `json:"pending"`
}

// DocumentSummary is one row of /documents.
type DocumentSummary struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	Language    string     `json:"language"`
	Cached      bool       `json:"cached"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.opts.Version,
		Uptime:  time.Since(s.startedAt).Seconds(),
	}
	if s.deps.Documents != nil {
		resp.Documents = s.deps.Documents.Len()
	}
	if s.deps.Cache != nil {
		resp.CacheEntries = s.deps.Cache.Len()
	}
	if s.deps.Worker != nil {
		resp.WorkerState = string(s.deps.Worker.State())
		resp.Pending = s.deps.Worker.Pending()
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	out := []DocumentSummary{}
	if s.deps.Documents != nil {
		for _, doc := range s.deps.Documents.Documents() {
			row := DocumentSummary{ID: doc.ID, Path: doc.Path, Language: doc.Language}
			if e, ok := s.deps.Cache.Get(doc.ID); ok {
				updated := e.UpdatedAt
				row.Cached = true
				row.Fingerprint = e.Fingerprint
				row.UpdatedAt = &updated
			}
			out = append(out, row)
		}
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

// handlePreview serves a full page. A document that has no preview yet is
// opted in and rendered on the request goroutine.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.entryFor(r, id)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, pageData{
		ID:         id,
		Title:      entry.Filename,
		Dir:        entry.Dirname,
		Hash:       entry.Fingerprint,
		Content:    template.HTML(entry.HTMLPart), //nolint:gosec // output of a configured renderer
		LiveReload: s.hub != nil,
		Script:     template.JS(liveReloadScript), //nolint:gosec // constant
	})
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, ferrors.InternalError("failed to render page").WithCause(err).Build())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleFragment serves the raw fragment with the fingerprint as ETag.
func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := s.deps.Cache.Get(id)
	if !ok {
		s.errorAdapter.WriteErrorResponse(w, r, ferrors.NotFoundError("no preview for document").WithContext("document_id", id).Build())
		return
	}

	etag := `"` + entry.Fingerprint + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(entry.HTMLPart))
}

func (s *Server) entryFor(r *http.Request, id string) (cache.Entry, error) {
	if entry, ok := s.deps.Cache.Get(id); ok {
		return entry, nil
	}
	if s.deps.Documents == nil || s.deps.Previewer == nil {
		return cache.Entry{}, ferrors.NotFoundError("no preview for document").WithContext("document_id", id).Build()
	}
	snap, ok := s.deps.Documents.Snapshot(id)
	if !ok {
		return cache.Entry{}, ferrors.NotFoundError("unknown document").WithContext("document_id", id).Build()
	}

	ctx := observability.WithSource(r.Context(), "http")
	if err := s.deps.Previewer.EnqueueViewSnapshot(ctx, snap, false, true); err != nil {
		return cache.Entry{}, err
	}
	entry, ok := s.deps.Cache.Get(id)
	if !ok {
		observability.InfoContext(observability.WithDocumentID(ctx, id), "Document has no preview", logfields.Filename(filepath.Base(snap.Filename)))
		return cache.Entry{}, ferrors.NotFoundError("no renderer produced a preview").WithContext("document_id", id).Build()
	}
	return entry, nil
}

// writeJSON encodes into a buffer first so that a failed encode never sends a
// partial body.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, ferrors.InternalError("failed to encode response").WithCause(err).Build())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("Failed writing JSON response", logfields.Error(err))
	}
}

type pageData struct {
	ID         string
	Title      string
	Dir        string
	Hash       string
	Content    template.HTML
	LiveReload bool
	Script     template.JS
}

var pageTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { max-width: 52rem; margin: 2rem auto; padding: 0 1rem; font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; line-height: 1.6; }
pre { overflow: auto; padding: 0.75rem; background: #f6f8fa; }
.omnipreview-path { color: #666; font-size: 0.85rem; }
</style>
</head>
<body>
<div class="omnipreview-path">{{.Dir}}</div>
<article id="omnipreview-content" data-id="{{.ID}}" data-hash="{{.Hash}}">{{.Content}}</article>
{{if .LiveReload}}<script>{{.Script}}</script>{{end}}
</body>
</html>
`))
