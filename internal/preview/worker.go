// Package preview schedules background rendering of editor documents and
// writes the results to the preview cache.
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/metrics"
	"git.home.luguber.info/inful/omnipreview/internal/observability"
)

// UntitledFilename stands in for documents that were never saved.
const UntitledFilename = "untitled"

// ErrWorkerStopped is returned by Enqueue after Stop.
var ErrWorkerStopped error = ferrors.RuntimeError("preview worker stopped").Build()

// Request is one render request. A newer request for the same DocumentID
// replaces a pending older one.
type Request struct {
	DocumentID  string
	Filename    string
	Language    string
	Text        string
	SubmittedAt time.Time

	seq uint64
}

// ProcessFunc renders one request. Errors and panics are contained per item.
type ProcessFunc func(ctx context.Context, req Request) error

// State is the lifecycle state of the worker goroutine.
type State string

const (
	StateIdle       State = "idle"
	StateWaiting    State = "waiting"
	StateDraining   State = "draining"
	StateProcessing State = "processing"
	StateTerminated State = "terminated"
)

// Worker coalesces render requests per document and processes them on a
// single goroutine.
//
// Submitters only touch the pending map under mu. The worker goroutine waits
// on cond until work arrives or Stop is called, swaps the map out and renders
// the batch without holding the lock.
type Worker struct {
	process  ProcessFunc
	recorder metrics.Recorder

	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[string]Request
	seq      uint64
	state    State
	started  bool
	stopping bool

	done     chan struct{}
	inflight sync.WaitGroup
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerRecorder sets the metrics recorder.
func WithWorkerRecorder(r metrics.Recorder) WorkerOption {
	return func(w *Worker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// NewWorker creates a stopped worker. Call Start to launch the goroutine.
func NewWorker(process ProcessFunc, opts ...WorkerOption) *Worker {
	w := &Worker{
		process:  process,
		recorder: metrics.NoopRecorder{},
		pending:  make(map[string]Request),
		state:    StateIdle,
		done:     make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the worker goroutine. Extra calls, and calls after Stop, do
// nothing.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopping {
		return
	}
	w.started = true
	w.state = StateWaiting
	go w.run()
	slog.Debug("Preview worker started")
}

// Enqueue submits a request.
//
// Queued requests go to the pending set and Enqueue returns at once. An
// immediate request is rendered on the calling goroutine before Enqueue
// returns; it neither reads nor modifies the pending set. Render failures are
// logged, never returned. After Stop both paths return ErrWorkerStopped.
func (w *Worker) Enqueue(ctx context.Context, req Request, immediate bool) error {
	if req.Filename == "" {
		req.Filename = UntitledFilename
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		return ErrWorkerStopped
	}

	if immediate {
		w.inflight.Add(1)
		w.mu.Unlock()
		defer w.inflight.Done()

		w.recorder.IncSubmission(metrics.ModeImmediate)
		w.processOne(ctx, req)
		return nil
	}

	w.seq++
	req.seq = w.seq
	_, coalesced := w.pending[req.DocumentID]
	w.pending[req.DocumentID] = req
	pending := len(w.pending)
	w.cond.Signal()
	w.mu.Unlock()

	w.recorder.IncSubmission(metrics.ModeQueued)
	if coalesced {
		w.recorder.IncCoalesced()
	}
	w.recorder.SetPending(pending)
	return nil
}

// Stop ends the worker and waits for it, and for immediate renders already
// running, to finish. Requests still pending are discarded. No ProcessFunc call
// is running or starts once Stop returns. Stop is idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	first := !w.stopping
	w.stopping = true
	dropped := len(w.pending)
	w.pending = make(map[string]Request)
	started := w.started
	if !started {
		w.state = StateTerminated
	}
	w.cond.Broadcast()
	w.mu.Unlock()

	if started {
		<-w.done
	}
	w.inflight.Wait()

	if !first {
		return
	}
	for i := 0; i < dropped; i++ {
		w.recorder.IncRenderOutcome("", metrics.OutcomeDroppedOnShutdown)
	}
	w.recorder.SetPending(0)
	slog.Debug("Preview worker stopped", slog.Int("dropped", dropped))
}

// Pending returns the number of requests waiting for the worker.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		w.mu.Lock()
		for !w.stopping && len(w.pending) == 0 {
			w.state = StateWaiting
			w.cond.Wait()
		}
		if w.stopping {
			w.state = StateTerminated
			w.mu.Unlock()
			return
		}

		w.state = StateDraining
		batch := w.pending
		w.pending = make(map[string]Request)
		w.state = StateProcessing
		w.mu.Unlock()

		w.recorder.SetPending(0)
		w.recorder.ObserveBatchSize(len(batch))
		w.processBatch(batch)
	}
}

// processBatch renders a drained batch oldest submission first.
func (w *Worker) processBatch(batch map[string]Request) {
	items := make([]Request, 0, len(batch))
	for _, req := range batch {
		items = append(items, req)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	start := time.Now()
	for _, req := range items {
		w.processOne(context.Background(), req)
	}
	slog.Debug("Preview batch processed",
		logfields.BatchSize(len(items)),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
}

// processOne is the per-item failure boundary.
func (w *Worker) processOne(ctx context.Context, req Request) {
	ctx = observability.WithDocumentID(ctx, req.DocumentID)
	defer func() {
		if p := recover(); p != nil {
			w.recorder.IncRenderOutcome("", metrics.OutcomeProcessingFailed)
			observability.ErrorContext(ctx, "Preview render panicked",
				logfields.Filename(req.Filename),
				slog.String("panic", fmt.Sprint(p)))
		}
	}()

	if err := w.process(ctx, req); err != nil {
		if !ferrors.HasCategory(err, ferrors.CategoryRenderer) {
			w.recorder.IncRenderOutcome("", metrics.OutcomeProcessingFailed)
		}
		observability.ErrorContext(ctx, "Preview render failed",
			logfields.Filename(req.Filename),
			logfields.Language(req.Language),
			logfields.Error(err))
	}
}
