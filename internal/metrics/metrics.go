// Package metrics defines the minimal metrics interface the service
// emits through, keeping vendor-specific code out of the core.
//
// Backends live in subpackages (datadog) plus the Nop backend here.
// The core depends only on Backend; which backend runs is a deployment
// decision.
package metrics

// Labels attach dimensions to a metric observation.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe
// for concurrent use; observation methods must never block the caller
// on network I/O.
type Backend interface {
	// IncCounter adds delta to a counter. Non-positive deltas are
	// ignored.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample. Negative values are
	// ignored.
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered observations, if the backend buffers.
	Flush() error

	// Close flushes and releases backend resources. Call once at
	// process shutdown.
	Close() error
}

// Metric names emitted by the service.
const (
	MetricRequestsTotal   = "insight_requests_total"
	MetricAnalysesTotal   = "insight_analyses_total"
	MetricRowsTotal       = "insight_rows_total"
	MetricChartsTotal     = "insight_charts_total"
	MetricRequestDuration = "insight_request_duration_seconds"
	MetricAnalyzeDuration = "insight_analyze_duration_seconds"
)

// Nop is the do-nothing backend used when metrics are not configured.
type Nop struct{}

func (Nop) IncCounter(name string, delta float64, labels Labels)       {}
func (Nop) ObserveHistogram(name string, value float64, labels Labels) {}
func (Nop) Flush() error                                               { return nil }
func (Nop) Close() error                                               { return nil }

var _ Backend = Nop{}
