package server

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/omnipreview/internal/events"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
)

// heartbeatInterval keeps idle SSE connections open through proxies.
var heartbeatInterval = 30 * time.Second

// ChangeEvent is the payload pushed to live-reload clients.
type ChangeEvent struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// LiveReloadHub fans cache updates out to SSE clients.
type LiveReloadHub struct {
	mu      sync.RWMutex
	nextID  int
	clients map[int]*lrClient
	closed  bool
	// last fingerprint per document; repeats are not broadcast
	last map[string]string
}

type lrClient struct {
	id   int
	ch   chan ChangeEvent
	done chan struct{}
}

func NewLiveReloadHub() *LiveReloadHub {
	return &LiveReloadHub{clients: map[int]*lrClient{}, last: map[string]string{}}
}

// Run broadcasts cache updates until ctx is done or updates is closed.
func (h *LiveReloadHub) Run(ctx context.Context, updates <-chan events.EntryUpdated) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-updates:
			if !ok {
				return
			}
			h.Broadcast(ChangeEvent{ID: evt.DocumentID, Hash: evt.Fingerprint})
		}
	}
}

// ServeHTTP implements the SSE endpoint.
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &lrClient{ch: make(chan ChangeEvent, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	h.mu.Unlock()
	defer h.removeClient(client.id)

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		return
	}
	if err := bw.Flush(); err != nil {
		return
	}
	flusher.Flush()

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				return
			}
		case evt := <-client.ch:
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := bw.WriteString("data: " + string(data) + "\n\n"); err != nil {
				slog.Debug("Livereload write failed", logfields.Error(err))
				return
			}
		}
		if err := bw.Flush(); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *LiveReloadHub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
	}
}

// Broadcast sends evt to every client. Clients that cannot keep up are
// disconnected; their browsers reconnect.
func (h *LiveReloadHub) Broadcast(evt ChangeEvent) {
	h.mu.Lock()
	if h.closed || evt.Hash == "" || h.last[evt.ID] == evt.Hash {
		h.mu.Unlock()
		return
	}
	h.last[evt.ID] = evt.Hash
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- evt:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	slog.Debug("Livereload broadcast", logfields.DocumentID(evt.ID), slog.Int("clients", len(snapshot)), slog.Int("dropped", dropped))
}

// Clients returns the number of connected clients.
func (h *LiveReloadHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects all clients and rejects new ones.
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.done)
	}
}

// liveReloadScript updates the preview fragment in place when the server
// reports a new fingerprint for the displayed document.
const liveReloadScript = `(() => {
  const root = document.getElementById('omnipreview-content');
  if (!root) return;
  const id = root.dataset.id;
  let current = root.dataset.hash;
  function connect() {
    const es = new EventSource('/livereload');
    es.onmessage = (e) => {
      let p;
      try { p = JSON.parse(e.data); } catch (_) { return; }
      if (p.id !== id || !p.hash || p.hash === current) return;
      fetch('/fragment/' + encodeURIComponent(id)).then((r) => {
        if (!r.ok) return;
        current = r.headers.get('ETag') ? r.headers.get('ETag').replace(/"/g, '') : p.hash;
        return r.text().then((html) => { root.innerHTML = html; });
      });
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();`
