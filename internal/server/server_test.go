package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/omnipreview/internal/cache"
	"git.home.luguber.info/inful/omnipreview/internal/events"
	"git.home.luguber.info/inful/omnipreview/internal/preview"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
	"git.home.luguber.info/inful/omnipreview/internal/renderer/markdown"
	"git.home.luguber.info/inful/omnipreview/internal/source"
)

type fixture struct {
	srv   *Server
	store *cache.MemoryStore
	table *source.DocumentTable
	coord *preview.Coordinator
	bus   *events.Bus
}

func newFixture(t *testing.T, liveReload bool) *fixture {
	t.Helper()
	bus := events.NewBus()
	store, err := cache.NewMemoryStore(cache.WithBus(bus))
	require.NoError(t, err)

	md := markdown.New("", renderer.NewMatcher(markdown.DefaultLanguages, markdown.DefaultExtensions), markdown.DefaultOptions())
	coord := preview.New(renderer.NewRegistry(md), store)
	coord.Start()
	t.Cleanup(coord.Stop)
	t.Cleanup(bus.Close)

	table := source.NewDocumentTable()
	srv := New(Options{
		Addr:           "127.0.0.1:0",
		LiveReload:     liveReload,
		MetricsPath:    "/metrics",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("metrics")) }),
		Version:        "test",
	}, Deps{Previewer: coord, Documents: table, Cache: store, Worker: coord.Worker(), Bus: bus})

	return &fixture{srv: srv, store: store, table: table, coord: coord, bus: bus}
}

func (f *fixture) get(t *testing.T, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	f.table.Track("/docs/a.md", "markdown", "# A")

	rec := f.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 1, resp.Documents)
	assert.NotEmpty(t, resp.WorkerState)
}

func TestPreview_RendersOnDemand(t *testing.T) {
	f := newFixture(t, true)
	doc := f.table.Track("/docs/a.md", "markdown", "# Title")

	rec := f.get(t, "/documents")
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []DocumentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.False(t, docs[0].Cached)

	rec = f.get(t, "/preview/"+doc.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<h1 id="title">Title</h1>`)
	assert.Contains(t, body, "<title>a.md</title>")
	assert.Contains(t, body, "EventSource")
	assert.True(t, f.coord.IsOptedIn(doc.ID))

	rec = f.get(t, "/documents")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.True(t, docs[0].Cached)
	assert.NotEmpty(t, docs[0].Fingerprint)
}

func TestPreview_NotFound(t *testing.T) {
	f := newFixture(t, false)

	rec := f.get(t, "/preview/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	doc := f.table.Track("/docs/a.py", "python", "print()")
	rec = f.get(t, "/preview/"+doc.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no renderer")
}

func TestPreview_NoScriptWithoutLiveReload(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.store.SetEntry("doc", cache.Entry{Filename: "a.md", Dirname: "/docs", HTMLPart: "<p>x</p>"}))

	rec := f.get(t, "/preview/doc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "EventSource")
	assert.Equal(t, http.StatusNotFound, f.get(t, "/livereload").Code)
}

func TestFragment_ETag(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/fragment/doc").Code)

	require.NoError(t, f.store.SetEntry("doc", cache.Entry{Filename: "a.md", HTMLPart: "<p>x</p>"}))
	rec := f.get(t, "/fragment/doc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>x</p>", rec.Body.String())
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, `"`+cache.Fingerprint("<p>x</p>")+`"`, etag)

	rec = f.get(t, "/fragment/doc", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t, false)
	rec := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestLiveReload_StreamsCacheUpdates(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.srv.Start(context.Background()))
	t.Cleanup(func() { _ = f.srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + f.srv.Addr() + "/livereload")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool { return f.srv.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.store.SetEntry("doc", cache.Entry{HTMLPart: "<p>new</p>"}))

	var data string
	for data == "" {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	var evt ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(data), &evt))
	assert.Equal(t, "doc", evt.ID)
	assert.Equal(t, cache.Fingerprint("<p>new</p>"), evt.Hash)
}

func TestLiveReloadHub_DedupesAndShutsDown(t *testing.T) {
	h := NewLiveReloadHub()
	c := &lrClient{ch: make(chan ChangeEvent, 8), done: make(chan struct{})}
	h.clients[0] = c

	h.Broadcast(ChangeEvent{ID: "a", Hash: "1"})
	h.Broadcast(ChangeEvent{ID: "a", Hash: "1"})
	h.Broadcast(ChangeEvent{ID: "b", Hash: "1"})
	h.Broadcast(ChangeEvent{ID: "a", Hash: ""})
	assert.Len(t, c.ch, 2)

	h.Shutdown()
	h.Shutdown()
	assert.Equal(t, 0, h.Clients())
	_, open := <-c.done
	assert.False(t, open)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livereload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
