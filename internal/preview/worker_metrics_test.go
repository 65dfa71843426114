package preview

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/omnipreview/internal/metrics"
)

type countingRecorder struct {
	metrics.NoopRecorder

	mu          sync.Mutex
	submissions map[metrics.SubmissionMode]int
	coalesced   int
	outcomes    map[metrics.OutcomeLabel]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		submissions: map[metrics.SubmissionMode]int{},
		outcomes:    map[metrics.OutcomeLabel]int{},
	}
}

func (r *countingRecorder) IncSubmission(m metrics.SubmissionMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[m]++
}

func (r *countingRecorder) IncCoalesced() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coalesced++
}

func (r *countingRecorder) IncRenderOutcome(_ string, o metrics.OutcomeLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o]++
}

func TestWorker_RecordsSubmissionsAndDrops(t *testing.T) {
	rec := newCountingRecorder()
	w := NewWorker(func(context.Context, Request) error { return nil }, WithWorkerRecorder(rec))
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, Request{DocumentID: "a", Text: "1"}, false))
	require.NoError(t, w.Enqueue(ctx, Request{DocumentID: "a", Text: "2"}, false))
	require.NoError(t, w.Enqueue(ctx, Request{DocumentID: "b"}, false))
	require.NoError(t, w.Enqueue(ctx, Request{DocumentID: "c"}, true))
	w.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 3, rec.submissions[metrics.ModeQueued])
	assert.Equal(t, 1, rec.submissions[metrics.ModeImmediate])
	assert.Equal(t, 1, rec.coalesced)
	assert.Equal(t, 2, rec.outcomes[metrics.OutcomeDroppedOnShutdown])
}
