// Package pipeline is the single entry point that turns "run report X for
// day D" into a rendered document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/delta"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/report"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/runguard"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/storage"
)

// Aggregator collects one day of statistics
type Aggregator interface {
	Aggregate(ctx context.Context, rt stats.ReportType, day stats.Day) (*stats.Snapshot, error)
}

// ThresholdSource supplies the current severity ladder
type ThresholdSource interface {
	Current() report.Thresholds
}

// Deliverer hands a rendered document to its destination
type Deliverer interface {
	Deliver(ctx context.Context, doc *report.Document) error
}

type staticThresholds report.Thresholds

func (s staticThresholds) Current() report.Thresholds { return report.Thresholds(s) }

// Config wires a Runner. Aggregator, Store and Renderer are required
type Config struct {
	Aggregator Aggregator
	Store      storage.SnapshotStore
	Renderer   *report.Renderer
	Thresholds ThresholdSource
	Guard      *runguard.Guard
	Metrics    *observability.Metrics
	Logger     *observability.Logger

	// Location defines the report day; defaults to UTC
	Location *time.Location

	// LiveFallback re-collects a missing previous day instead of using a
	// zero baseline
	LiveFallback bool

	Now func() time.Time
}

// Runner executes report runs
type Runner struct {
	aggregator Aggregator
	store      storage.SnapshotStore
	resolver   *delta.Resolver
	renderer   *report.Renderer
	thresholds ThresholdSource
	guard      *runguard.Guard
	metrics    *observability.Metrics
	logger     *observability.Logger
	location   *time.Location
	now        func() time.Time
}

// New creates a Runner from cfg
func New(cfg Config) (*Runner, error) {
	if cfg.Aggregator == nil || cfg.Store == nil || cfg.Renderer == nil {
		return nil, errors.New("pipeline: aggregator, store and renderer are required")
	}
	r := &Runner{
		aggregator: cfg.Aggregator,
		store:      cfg.Store,
		renderer:   cfg.Renderer,
		thresholds: cfg.Thresholds,
		guard:      cfg.Guard,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		location:   cfg.Location,
		now:        cfg.Now,
	}
	if r.thresholds == nil {
		r.thresholds = staticThresholds(report.DefaultThresholds())
	}
	if r.logger == nil {
		r.logger = observability.NopLogger()
	}
	if r.location == nil {
		r.location = time.UTC
	}
	if r.now == nil {
		r.now = time.Now
	}

	var live delta.LiveAggregator
	if cfg.LiveFallback {
		live = cfg.Aggregator
	}
	r.resolver = delta.NewResolver(cfg.Store, live)
	return r, nil
}

// Today returns the current report day
func (r *Runner) Today() stats.Day {
	return stats.DayOf(r.now(), r.location)
}

// RunReport produces the report of reportType for date (YYYY-MM-DD, empty
// for today). Source failures degrade the document. Only an invalid
// request, a held run guard, cancellation before persistence, a failed
// persistence or a failed render return an error.
func (r *Runner) RunReport(ctx context.Context, reportType, date string) (*report.Document, error) {
	rt, err := stats.ParseReportType(reportType)
	if err != nil {
		return nil, err
	}
	day := r.Today()
	if date != "" {
		if day, err = stats.ParseDay(date, r.location); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	logger := r.logger.WithFields(map[string]interface{}{
		"run_id":      runID,
		"report_type": string(rt),
		"date":        day.String(),
	})
	ctx = observability.WithRunID(ctx, runID)
	ctx = observability.WithReportType(ctx, string(rt))
	ctx = observability.WithLogger(ctx, logger)

	ctx, span := observability.Tracer().Start(ctx, "report.run",
		trace.WithAttributes(
			attribute.String("report.type", string(rt)),
			attribute.String("report.date", day.String()),
			attribute.String("run.id", runID),
		),
	)
	defer span.End()
	ctx = observability.WithLogger(ctx, observability.UpdateLoggerWithTraceContext(ctx, logger))

	start := time.Now()
	doc, status, err := r.run(ctx, rt, day, runID)
	r.metrics.RecordRun(string(rt), status, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		if status == observability.OutcomeSkipped {
			logger.WithError(err).Warn("Report run skipped")
		} else {
			logger.WithError(err).Error("Report run failed")
		}
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"status":   status,
		"severity": doc.Severity.String(),
		"degraded": len(doc.Degraded),
		"duration": time.Since(start).String(),
	}).Info("Report run completed")
	return doc, nil
}

func (r *Runner) run(ctx context.Context, rt stats.ReportType, day stats.Day, runID string) (*report.Document, string, error) {
	logger := observability.FromContext(ctx)

	lease, err := r.guard.Acquire(ctx, rt, day, runID)
	if err != nil {
		return nil, observability.OutcomeSkipped, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("Failed to release run guard")
		}
	}()

	snap, err := r.aggregator.Aggregate(ctx, rt, day)
	if err != nil {
		return nil, observability.OutcomeFailed, fmt.Errorf("aggregate %s %s: %w", rt, day, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, observability.OutcomeFailed, fmt.Errorf("run cancelled before persistence: %w", err)
	}
	if err := r.store.Put(ctx, snap); err != nil {
		return nil, observability.OutcomeFailed, fmt.Errorf("persist snapshot: %w", err)
	}

	prev, baseline := r.resolver.Previous(ctx, rt, day)
	deltas := delta.Compute(snap, prev)

	doc, err := r.renderer.Render(report.Input{
		Snapshot:     snap,
		Deltas:       deltas,
		Baseline:     string(baseline),
		BaselineDate: prev.Date,
		Previous:     prev,
		Thresholds:   r.thresholds.Current(),
		GeneratedAt:  r.now(),
	})
	if err != nil {
		return nil, observability.OutcomeFailed, err
	}

	if len(doc.Degraded) > 0 {
		return doc, observability.OutcomeDegraded, nil
	}
	return doc, observability.OutcomeOK, nil
}

// RunAndDeliver runs the report and hands it to d. A delivery failure is
// logged; the run itself still succeeded.
func (r *Runner) RunAndDeliver(ctx context.Context, reportType, date string, d Deliverer) (*report.Document, error) {
	doc, err := r.RunReport(ctx, reportType, date)
	if err != nil {
		return nil, err
	}
	if err := d.Deliver(ctx, doc); err != nil {
		r.logger.WithFields(map[string]interface{}{
			"report_type": reportType,
			"title":       doc.Title,
		}).WithError(err).Error("Report delivery failed")
	}
	return doc, nil
}

// RunAll runs every report type for date in order and joins the failures
func (r *Runner) RunAll(ctx context.Context, date string, d Deliverer) error {
	var errs []error
	for _, rt := range stats.ReportTypes() {
		if _, err := r.RunAndDeliver(ctx, string(rt), date, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt, err))
		}
	}
	return errors.Join(errs...)
}
