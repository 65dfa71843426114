// Package metrics provides the observability hooks of the preview coordinator.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics are optional and never require nil checks:
//
//	coord := preview.New(registry, store, preview.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder forwards to client_golang collectors registered on the
// supplied registry; HTTPHandler exposes that registry for scraping.
package metrics
