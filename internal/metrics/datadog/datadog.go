// Package datadog implements a Datadog backend for the internal/metrics package.
//
// NOTE ABOUT FLUSHING:
// The service is long-running; submitting only at shutdown would turn
// dashboards into a single spike. Therefore we:
//   - buffer metrics in-memory (fast, lock-protected)
//   - periodically Flush() on a ticker (default: once per minute)
//   - Flush() one final time on Close()
//
// Concurrency model:
//   - request handlers can call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
//
// If the process is killed with SIGKILL/OOM, Close() won't run (no backend
// can fix that).
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"insight/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// ServiceName becomes tag "service:<name>" on every metric.
	// If empty, defaults to "insight".
	ServiceName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// The following fields are unexported test seams. Production code
	// never sets them; unit tests set them to avoid real network
	// submission and nondeterministic clocks/tickers.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
//
// The Datadog SDK exposes a concrete *datadogV2.MetricsApi, which makes
// unit testing difficult. Backend depends on this interface instead,
// enabling deterministic tests with a fake submitter.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	reqCounts      map[string]float64 // endpoint\x00status -> count
	analysisCounts map[string]float64 // domain -> count
	rowCount       float64
	chartCounts    map[string]float64   // chart type -> count
	reqDurations   map[string][]float64 // endpoint\x00status -> samples
	analyzeDur     []float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.ServiceName is empty, defaults to "insight".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Datadog client construction is not expected to fail under normal
// conditions; network errors surface from Flush().
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	service := opts.ServiceName
	if service == "" {
		service = "insight"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "service:"+service)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		reqCounts:      make(map[string]float64),
		analysisCounts: make(map[string]float64),
		chartCounts:    make(map[string]float64),
		reqDurations:   make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Call once; a second Close panics on the closed channel, matching
// typical "close once" semantics for process-lifetime backends.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown metric names are
// ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricRequestsTotal:
		b.reqCounts[endpointStatusKey(labels["endpoint"], labels["status"])] += delta

	case metrics.MetricAnalysesTotal:
		domain := labels["domain"]
		if domain == "" {
			domain = "unknown"
		}
		b.analysisCounts[domain] += delta

	case metrics.MetricRowsTotal:
		b.rowCount += delta

	case metrics.MetricChartsTotal:
		kind := labels["type"]
		if kind == "" {
			return
		}
		b.chartCounts[kind] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown metric names are
// ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricRequestDuration:
		k := endpointStatusKey(labels["endpoint"], labels["status"])
		b.reqDurations[k] = append(b.reqDurations[k], value)

	case metrics.MetricAnalyzeDuration:
		b.analyzeDur = append(b.analyzeDur, value)
	}
}

// snapshot is the buffered metric state detached for one flush, so the
// payload can be built and submitted out-of-lock.
type snapshot struct {
	reqCounts      map[string]float64
	analysisCounts map[string]float64
	rowCount       float64
	chartCounts    map[string]float64
	reqDurations   map[string][]float64
	analyzeDur     []float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		reqCounts:      b.reqCounts,
		analysisCounts: b.analysisCounts,
		rowCount:       b.rowCount,
		chartCounts:    b.chartCounts,
		reqDurations:   b.reqDurations,
		analyzeDur:     b.analyzeDur,
	}

	b.reqCounts = make(map[string]float64)
	b.analysisCounts = make(map[string]float64)
	b.rowCount = 0
	b.chartCounts = make(map[string]float64)
	b.reqDurations = make(map[string][]float64)
	b.analyzeDur = nil

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.reqCounts) == 0 &&
		len(s.analysisCounts) == 0 &&
		s.rowCount == 0 &&
		len(s.chartCounts) == 0 &&
		len(s.reqDurations) == 0 &&
		len(s.analyzeDur) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Edge cases:
//   - Safe to call concurrently with IncCounter/ObserveHistogram.
//   - Returns nil when there is nothing to submit.
//   - Buffers reset even if submission fails, so a Datadog outage
//     cannot grow memory without bound.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed
// timestamp. Pure (no locks, no network, no clocks), so it carries the
// naming/tagging contract and is unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.reqCounts)+len(s.analysisCounts)+16)

	for k, v := range s.reqCounts {
		if v == 0 {
			continue
		}
		endpoint, status := splitEndpointStatusKey(k)
		tags := withTags(b.baseTags, "endpoint:"+endpoint, "status:"+status)
		series = append(series, countSeries("insight.requests.total", v, tags, nowUnix))
	}

	for domain, v := range s.analysisCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "domain:"+domain)
		series = append(series, countSeries("insight.analyses.total", v, tags, nowUnix))
	}

	if s.rowCount != 0 {
		series = append(series, countSeries("insight.rows.total", s.rowCount, b.baseTags, nowUnix))
	}

	for kind, v := range s.chartCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "type:"+kind)
		series = append(series, countSeries("insight.charts.total", v, tags, nowUnix))
	}

	for k, samples := range s.reqDurations {
		endpoint, status := splitEndpointStatusKey(k)
		tags := withTags(b.baseTags, "endpoint:"+endpoint, "status:"+status)
		addPercentiles(&series, "insight.request.duration_seconds", samples, tags, nowUnix)
	}

	addPercentiles(&series, "insight.analyze.duration_seconds", s.analyzeDur, b.baseTags, nowUnix)

	return series
}

// addPercentiles appends a fixed set of percentile gauges for a sample
// set. Sorts a copy; empty samples append nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func endpointStatusKey(endpoint, status string) string {
	if endpoint == "" {
		endpoint = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	return endpoint + "\x00" + status
}

func splitEndpointStatusKey(k string) (endpoint, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:api".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
