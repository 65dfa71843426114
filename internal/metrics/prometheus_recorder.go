package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	submissions    *prom.CounterVec
	coalesced      prom.Counter
	pending        prom.Gauge
	batchSize      prom.Histogram
	renderDuration *prom.HistogramVec
	renderOutcomes *prom.CounterVec
	cacheEntries   prom.Gauge
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil registry gets a private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		submissions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "omnipreview",
			Name:      "submissions_total",
			Help:      "Render requests accepted by the coordinator, by mode",
		}, []string{"mode"}),
		coalesced: prom.NewCounter(prom.CounterOpts{
			Namespace: "omnipreview",
			Name:      "coalesced_requests_total",
			Help:      "Pending requests replaced by a newer request for the same document",
		}),
		pending: prom.NewGauge(prom.GaugeOpts{
			Namespace: "omnipreview",
			Name:      "pending_documents",
			Help:      "Documents waiting for the background worker",
		}),
		batchSize: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "omnipreview",
			Name:      "batch_size",
			Help:      "Documents drained per worker wake-up",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		renderDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "omnipreview",
			Name:      "render_duration_seconds",
			Help:      "Duration of successful renders by renderer",
			Buckets:   prom.DefBuckets,
		}, []string{"renderer"}),
		renderOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "omnipreview",
			Name:      "render_outcomes_total",
			Help:      "Render outcomes by renderer",
		}, []string{"renderer", "outcome"}),
		cacheEntries: prom.NewGauge(prom.GaugeOpts{
			Namespace: "omnipreview",
			Name:      "cache_entries",
			Help:      "Rendered fragments currently held in the cache",
		}),
	}
	reg.MustRegister(pr.submissions, pr.coalesced, pr.pending, pr.batchSize, pr.renderDuration, pr.renderOutcomes, pr.cacheEntries)
	return pr
}

func (p *PrometheusRecorder) IncSubmission(mode SubmissionMode) {
	if p == nil {
		return
	}
	p.submissions.WithLabelValues(string(mode)).Inc()
}

func (p *PrometheusRecorder) IncCoalesced() {
	if p == nil {
		return
	}
	p.coalesced.Inc()
}

func (p *PrometheusRecorder) SetPending(n int) {
	if p == nil {
		return
	}
	p.pending.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveBatchSize(n int) {
	if p == nil {
		return
	}
	p.batchSize.Observe(float64(n))
}

func (p *PrometheusRecorder) ObserveRenderDuration(renderer string, d time.Duration) {
	if p == nil {
		return
	}
	p.renderDuration.WithLabelValues(renderer).Observe(d.Seconds())
}

// IncRenderOutcome counts an outcome. Outcomes not tied to a renderer use "".
func (p *PrometheusRecorder) IncRenderOutcome(renderer string, outcome OutcomeLabel) {
	if p == nil {
		return
	}
	p.renderOutcomes.WithLabelValues(renderer, string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetCacheEntries(n int) {
	if p == nil {
		return
	}
	p.cacheEntries.Set(float64(n))
}
