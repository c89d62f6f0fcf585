package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	runsTotal     metric.Int64Counter
	runDuration   metric.Float64Histogram
	fetchesTotal  metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

// NewOTelMetrics creates the reporter instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("fleet-reporter")
	m := &OTelMetrics{}

	var err error
	m.runsTotal, err = meter.Int64Counter(
		"fleet.report.runs",
		metric.WithDescription("Total number of report runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fleet.report.runs counter: %w", err)
	}

	m.runDuration, err = meter.Float64Histogram(
		"fleet.report.run.duration",
		metric.WithDescription("Report run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fleet.report.run.duration histogram: %w", err)
	}

	m.fetchesTotal, err = meter.Int64Counter(
		"fleet.source.fetches",
		metric.WithDescription("Total number of source connector fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fleet.source.fetches counter: %w", err)
	}

	m.fetchDuration, err = meter.Float64Histogram(
		"fleet.source.fetch.duration",
		metric.WithDescription("Source connector fetch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fleet.source.fetch.duration histogram: %w", err)
	}

	return m, nil
}

func (m *OTelMetrics) recordRun(reportType, status string, d time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("report.type", reportType),
		attribute.String("report.status", status),
	)
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *OTelMetrics) recordFetch(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("source.kind", kind),
		attribute.String("source.status", status),
	)
	m.fetchesTotal.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, d.Seconds(), attrs)
}
