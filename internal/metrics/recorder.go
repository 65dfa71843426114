package metrics

import "time"

// SubmissionMode labels how a render request entered the coordinator.
type SubmissionMode string

const (
	ModeQueued    SubmissionMode = "queued"
	ModeImmediate SubmissionMode = "immediate"
)

// OutcomeLabel enumerates render outcome categories for counters.
type OutcomeLabel string

const (
	OutcomeRendered          OutcomeLabel = "rendered"
	OutcomeNoRenderer        OutcomeLabel = "no_renderer"
	OutcomeRenderFailed      OutcomeLabel = "render_failed"
	OutcomeEnablementFailed  OutcomeLabel = "enablement_failed"
	OutcomeProcessingFailed  OutcomeLabel = "processing_failed"
	OutcomeDroppedOnShutdown OutcomeLabel = "dropped_on_shutdown"
)

// Recorder defines observability hooks for the render pipeline.
type Recorder interface {
	IncSubmission(mode SubmissionMode)
	IncCoalesced()
	SetPending(n int)
	ObserveBatchSize(n int)
	ObserveRenderDuration(renderer string, d time.Duration)
	IncRenderOutcome(renderer string, outcome OutcomeLabel)
	SetCacheEntries(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncSubmission(SubmissionMode) {}
func (NoopRecorder) IncCoalesced() {}
func (NoopRecorder) SetPending(int) {}
func (NoopRecorder) ObserveBatchSize(int) {}
func (NoopRecorder) ObserveRenderDuration(string, time.Duration) {}
func (NoopRecorder) IncRenderOutcome(string, OutcomeLabel) {}
func (NoopRecorder) SetCacheEntries(int) {}
