package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/omnipreview/internal/cache"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
	"git.home.luguber.info/inful/omnipreview/internal/renderer/markdown"
)

// recordingStore is a cache.Store that keeps every write.
type recordingStore struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
	writes  []string
}

var _ cache.Store = (*recordingStore)(nil)

func newRecordingStore() *recordingStore {
	return &recordingStore{entries: make(map[string]cache.Entry)}
}

func (s *recordingStore) SetEntry(id string, e cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = e
	s.writes = append(s.writes, id)
	return nil
}

func (s *recordingStore) Exists(id string) bool {
	_, ok := s.Get(id)
	return ok
}

func (s *recordingStore) Get(id string) (cache.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *recordingStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

func (s *recordingStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

func (s *recordingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *recordingStore) Prune(time.Duration) int { return 0 }

func (s *recordingStore) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *recordingStore) WritesFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.writes {
		if w == id {
			n++
		}
	}
	return n
}

// echoRenderer renders "<p>text</p>" for one language and counts calls.
type echoRenderer struct {
	name      string
	language  string
	renderErr error
	panics    bool
	enableErr error
	block     chan struct{}
	started   chan struct{}

	mu           sync.Mutex
	texts        []string
	enabledCalls int
}

func (r *echoRenderer) Name() string { return r.name }

func (r *echoRenderer) IsEnabled(_, language string) (bool, error) {
	r.mu.Lock()
	r.enabledCalls++
	r.mu.Unlock()
	if r.enableErr != nil {
		return false, r.enableErr
	}
	return r.language == "" || r.language == language, nil
}

func (r *echoRenderer) Render(_ context.Context, text, _ string) (string, error) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	if r.panics {
		panic("renderer exploded")
	}
	if r.renderErr != nil {
		return "", r.renderErr
	}
	return "<p>" + text + "</p>", nil
}

func (r *echoRenderer) EnabledCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabledCalls
}

func (r *echoRenderer) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func newCoordinator(t *testing.T, renderers ...renderer.Renderer) (*Coordinator, *recordingStore) {
	t.Helper()
	store := newRecordingStore()
	c := New(renderer.NewRegistry(renderers...), store)
	t.Cleanup(c.Stop)
	return c, store
}

func snap(id, lang, text string) Snapshot {
	return Snapshot{DocumentID: id, Filename: "/docs/" + id + ".md", Language: lang, Text: text}
}

func TestCoalescing_OnlyLatestPendingRequestIsRendered(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, md)
	ctx := context.Background()

	for _, text := range []string{"v1", "v2", "v3"} {
		require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("doc", "markdown", text), false, false))
	}
	assert.Equal(t, 1, c.Worker().Pending())

	c.Start()
	require.Eventually(t, func() bool { return store.Exists("doc") }, time.Second, 5*time.Millisecond)
	c.Stop()

	assert.Equal(t, []string{"v3"}, md.Texts())
	assert.Equal(t, 1, store.WritesFor("doc"))
	e, _ := store.Get("doc")
	assert.Equal(t, "<p>v3</p>", e.HTMLPart)
}

func TestIndependence_DistinctDocumentsAreAllRendered(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, md)
	ctx := context.Background()

	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("a", "markdown", "A"), false, false))
	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("b", "markdown", "B"), false, false))
	assert.Equal(t, 2, c.Worker().Pending())

	c.Start()
	require.Eventually(t, func() bool { return store.Exists("a") && store.Exists("b") }, time.Second, 5*time.Millisecond)

	a, _ := store.Get("a")
	b, _ := store.Get("b")
	assert.Equal(t, "<p>A</p>", a.HTMLPart)
	assert.Equal(t, "<p>B</p>", b.HTMLPart)
}

func TestImmediate_RendersSynchronouslyWithoutQueue(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, md)

	// The worker is not started: only the immediate path can write.
	require.NoError(t, c.EnqueueViewSnapshot(context.Background(), snap("doc", "markdown", "now"), false, true))

	assert.Equal(t, 0, c.Worker().Pending())
	e, ok := store.Get("doc")
	require.True(t, ok)
	assert.Equal(t, "<p>now</p>", e.HTMLPart)
	assert.Equal(t, "doc.md", e.Filename)
	assert.Equal(t, "/docs", e.Dirname)
}

func TestImmediate_DoesNotTouchPendingRequest(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, _ := newCoordinator(t, md)
	ctx := context.Background()

	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("doc", "markdown", "queued"), false, false))
	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("doc", "markdown", "direct"), false, true))

	assert.Equal(t, 1, c.Worker().Pending())
	assert.Equal(t, []string{"direct"}, md.Texts())
}

func TestNoRendererAvailable_NoWriteAndWorkerContinues(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, md)
	ctx := context.Background()
	c.Start()

	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("py", "python", "print()"), false, false))
	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("md", "markdown", "ok"), false, false))

	require.Eventually(t, func() bool { return store.Exists("md") }, time.Second, 5*time.Millisecond)
	assert.False(t, store.Exists("py"))
	assert.Equal(t, StateWaiting, eventuallyState(t, c.Worker(), StateWaiting))
}

func TestRendererFailureIsolation(t *testing.T) {
	failing := &echoRenderer{name: "failing", language: "markdown", renderErr: errors.New("boom")}
	panicking := &echoRenderer{name: "panicking", language: "markdown", panics: true}
	good := &echoRenderer{name: "good", language: "markdown"}
	c, store := newCoordinator(t, failing, panicking, good)

	require.NoError(t, c.EnqueueViewSnapshot(context.Background(), snap("doc", "markdown", "x"), false, true))

	e, ok := store.Get("doc")
	require.True(t, ok)
	assert.Equal(t, "<p>x</p>", e.HTMLPart)
	assert.Len(t, failing.Texts(), 1)
	assert.Len(t, panicking.Texts(), 1)
}

func TestEnablementFailure_ContainedPerItem(t *testing.T) {
	broken := &echoRenderer{name: "broken", language: "python", enableErr: errors.New("bad plugin")}
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, broken, md)
	ctx := context.Background()

	// Immediate submitters never see render errors.
	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("a", "markdown", "x"), false, true))
	assert.False(t, store.Exists("a"))
	assert.Empty(t, md.Texts(), "an enablement failure aborts the dispatch")

	c.Start()
	calls := broken.EnabledCalls()
	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("a", "markdown", "x"), false, false))
	require.Eventually(t, func() bool { return broken.EnabledCalls() > calls }, time.Second, 5*time.Millisecond)

	c.Reload([]renderer.Renderer{md})
	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("b", "markdown", "y"), false, false))
	require.Eventually(t, func() bool { return store.Exists("b") }, time.Second, 5*time.Millisecond)
	assert.False(t, store.Exists("a"))
}

func TestShutdown_StopReturnsAndNoWriteAfterwards(t *testing.T) {
	md := markdown.New("", renderer.NewMatcher(markdown.DefaultLanguages, markdown.DefaultExtensions), markdown.DefaultOptions())
	c, store := newCoordinator(t, md)
	c.Start()

	require.NoError(t, c.EnqueueViewSnapshot(context.Background(),
		Snapshot{DocumentID: "x", Filename: "a.md", Language: "markdown", Text: "# Title"}, false, false))

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	writes := store.WriteCount()
	assert.LessOrEqual(t, writes, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, writes, store.WriteCount())
	assert.Equal(t, StateTerminated, c.Worker().State())

	err := c.EnqueueViewSnapshot(context.Background(), snap("x", "markdown", "again"), false, false)
	require.ErrorIs(t, err, ErrWorkerStopped)
	err = c.EnqueueViewSnapshot(context.Background(), snap("x", "markdown", "again"), false, true)
	require.ErrorIs(t, err, ErrWorkerStopped)
	assert.Equal(t, writes, store.WriteCount())
}

func TestShutdown_WaitsForInFlightImmediateRender(t *testing.T) {
	slow := &echoRenderer{name: "slow", language: "markdown", block: make(chan struct{}), started: make(chan struct{}, 1)}
	c, store := newCoordinator(t, slow)
	c.Start()

	go func() {
		_ = c.EnqueueViewSnapshot(context.Background(), snap("doc", "markdown", "x"), false, true)
	}()
	<-slow.started

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an immediate render was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(slow.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.True(t, store.Exists("doc"))
}

func TestStop_DiscardsPendingAndIsIdempotent(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, md)

	require.NoError(t, c.EnqueueViewSnapshot(context.Background(), snap("doc", "markdown", "x"), false, false))
	c.Stop()
	c.Stop()

	assert.Equal(t, 0, c.Worker().Pending())
	assert.Equal(t, 0, store.WriteCount())
	assert.Equal(t, StateTerminated, c.Worker().State())

	c.Start()
	assert.Equal(t, StateTerminated, c.Worker().State(), "Start after Stop is a no-op")
}

func TestOptIn_OnlyIfAlreadyCached(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, md)
	ctx := context.Background()

	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("doc", "markdown", "lazy"), true, true))
	assert.False(t, store.Exists("doc"))
	assert.False(t, c.IsOptedIn("doc"))

	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("doc", "markdown", "explicit"), false, true))
	assert.True(t, c.IsOptedIn("doc"))

	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("doc", "markdown", "lazy again"), true, true))
	e, _ := store.Get("doc")
	assert.Equal(t, "<p>lazy again</p>", e.HTMLPart)

	c.Forget("doc")
	assert.False(t, c.IsOptedIn("doc"))
	assert.False(t, store.Exists("doc"))
	require.NoError(t, c.EnqueueViewSnapshot(ctx, snap("doc", "markdown", "after forget"), true, true))
	assert.False(t, store.Exists("doc"))
}

func TestOptIn_ExistingCacheEntryCounts(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, md)
	require.NoError(t, store.SetEntry("doc", cache.Entry{HTMLPart: "old"}))

	require.NoError(t, c.EnqueueViewSnapshot(context.Background(), snap("doc", "markdown", "new"), true, true))
	e, _ := store.Get("doc")
	assert.Equal(t, "<p>new</p>", e.HTMLPart)
}

func TestEnqueue_ValidatesAndDefaultsFilename(t *testing.T) {
	md := &echoRenderer{name: "md", language: "markdown"}
	c, store := newCoordinator(t, md)
	ctx := context.Background()

	require.Error(t, c.EnqueueViewSnapshot(ctx, Snapshot{Language: "markdown"}, false, true))

	require.NoError(t, c.EnqueueViewSnapshot(ctx, Snapshot{DocumentID: "u", Language: "markdown", Text: "t"}, false, true))
	e, ok := store.Get("u")
	require.True(t, ok)
	assert.Equal(t, UntitledFilename, e.Filename)
	assert.Equal(t, ".", e.Dirname)
}

func TestCoordinator_HelpersAndReload(t *testing.T) {
	c, _ := newCoordinator(t, &echoRenderer{name: "md", language: "markdown"})

	assert.True(t, c.HasRendererFor("a.md", "markdown"))
	assert.False(t, c.HasRendererFor("a.py", "python"))
	assert.Equal(t, "markdown", c.LanguageFromScope("Markdown meta.paragraph"))

	c.Reload([]renderer.Renderer{&echoRenderer{name: "py", language: "python"}})
	assert.True(t, c.HasRendererFor("a.py", "python"))
	assert.False(t, c.HasRendererFor("a.md", "markdown"))
}

func TestWorker_States(t *testing.T) {
	w := NewWorker(func(context.Context, Request) error { return nil })
	assert.Equal(t, StateIdle, w.State())

	w.Start()
	w.Start()
	eventuallyState(t, w, StateWaiting)

	w.Stop()
	assert.Equal(t, StateTerminated, w.State())
}

func TestWorker_ProcessErrorsDoNotStopLoop(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	w := NewWorker(func(_ context.Context, req Request) error {
		mu.Lock()
		seen[req.DocumentID]++
		mu.Unlock()
		if req.DocumentID == "panic" {
			panic("boom")
		}
		return errors.New("always fails")
	})
	w.Start()
	t.Cleanup(w.Stop)

	ctx := context.Background()
	require.NoError(t, w.Enqueue(ctx, Request{DocumentID: "panic"}, false))
	require.NoError(t, w.Enqueue(ctx, Request{DocumentID: "err"}, false))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["panic"] == 1 && seen["err"] == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Enqueue(ctx, Request{DocumentID: "later"}, false))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["later"] == 1
	}, time.Second, 5*time.Millisecond)
}

func eventuallyState(t *testing.T, w *Worker, want State) State {
	t.Helper()
	require.Eventually(t, func() bool { return w.State() == want }, time.Second, 5*time.Millisecond)
	return w.State()
}
