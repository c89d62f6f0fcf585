package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the counters below
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Metrics holds all Prometheus metrics of the reporter.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Source metrics
	SourceFetchTotal    *prometheus.CounterVec
	SourceFetchDuration *prometheus.HistogramVec
	QueryPollsTotal     *prometheus.CounterVec

	// Snapshot store metrics
	SnapshotOperationsTotal *prometheus.CounterVec

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_report_runs_total",
				Help: "Total number of report runs",
			},
			[]string{"report_type", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_report_run_duration_seconds",
				Help:    "Report run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"report_type"},
		),
		SourceFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_source_fetch_total",
				Help: "Total number of source connector fetches",
			},
			[]string{"kind", "group", "status"},
		),
		SourceFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_source_fetch_duration_seconds",
				Help:    "Source connector fetch duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),
		QueryPollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_query_polls_total",
				Help: "Total number of async query status polls",
			},
			[]string{"engine", "outcome"},
		),
		SnapshotOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_snapshot_operations_total",
				Help: "Total number of snapshot store operations",
			},
			[]string{"operation", "backend", "status"},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.SourceFetchTotal,
		m.SourceFetchDuration,
		m.QueryPollsTotal,
		m.SnapshotOperationsTotal,
	)

	return m
}

// AttachOTel mirrors run and fetch observations into OpenTelemetry instruments
func (m *Metrics) AttachOTel(om *OTelMetrics) {
	if m == nil {
		return
	}
	m.otel = om
}

// RecordRun records the outcome of one report run
func (m *Metrics) RecordRun(reportType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(reportType, status).Inc()
	m.RunDuration.WithLabelValues(reportType).Observe(d.Seconds())
	m.otel.recordRun(reportType, status, d)
}

// RecordFetch records one source connector fetch
func (m *Metrics) RecordFetch(kind, group, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceFetchTotal.WithLabelValues(kind, group, status).Inc()
	m.SourceFetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.otel.recordFetch(kind, status, d)
}

// RecordPoll records one async query status poll
func (m *Metrics) RecordPoll(engine, outcome string) {
	if m == nil {
		return
	}
	m.QueryPollsTotal.WithLabelValues(engine, outcome).Inc()
}

// RecordSnapshotOp records one snapshot store operation
func (m *Metrics) RecordSnapshotOp(operation, backend, status string) {
	if m == nil {
		return
	}
	m.SnapshotOperationsTotal.WithLabelValues(operation, backend, status).Inc()
}

// MetricsHandler returns the /metrics handler for registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
