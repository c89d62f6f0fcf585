package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/async"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/sources"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// Aggregator fans out to every connector of a report type and merges the
// results into one snapshot
type Aggregator struct {
	plans        map[stats.ReportType]Plan
	concurrency  int
	fetchTimeout time.Duration
	metrics      *observability.Metrics
	now          func() time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithConcurrency bounds the number of connectors in flight. Zero, the
// default, starts every connector of a plan at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

// WithFetchTimeout bounds each connector fetch
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.fetchTimeout = d }
}

// WithMetrics records fetch metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithClock overrides the snapshot timestamp source
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New validates plans and creates an aggregator
func New(plans []Plan, opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		plans: make(map[stats.ReportType]Plan, len(plans)),
		now:   time.Now,
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := a.plans[p.ReportType]; dup {
			return nil, fmt.Errorf("duplicate plan for report type %q", p.ReportType)
		}
		a.plans[p.ReportType] = p
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// fetchResult is one task's private output slot
type fetchResult struct {
	count       sources.CountResult
	contributor sources.ContributorResult
}

// Aggregate collects the snapshot of rt for day. Source failures are
// contained: the group keeps its zero default and is listed in
// Snapshot.SourceErrors. Only an unknown report type or a cancelled context
// fail the call.
func (a *Aggregator) Aggregate(ctx context.Context, rt stats.ReportType, day stats.Day) (*stats.Snapshot, error) {
	plan, ok := a.plans[rt]
	if !ok {
		return nil, fmt.Errorf("no aggregation plan for report type %q", rt)
	}
	snapshot, err := stats.NewSnapshot(rt, day, a.now())
	if err != nil {
		return nil, err
	}

	window := day.Window()
	groups := plan.groups()
	results := make([]fetchResult, len(groups))
	tasks := make([]async.Task, len(groups))
	for i, group := range groups {
		tasks[i] = async.Task{
			Name: group,
			Run: func(ctx context.Context) error {
				return a.fetch(ctx, plan, group, window, &results[i])
			},
		}
	}

	errs := async.Gather(ctx, a.concurrency, a.fetchTimeout, tasks)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregation of %s %s cancelled: %w", rt, day, err)
	}

	logger := observability.FromContext(ctx)
	for i, group := range groups {
		err := errs[i]
		if err == nil {
			err = a.assign(snapshot, plan, group, results[i])
		}
		if err != nil {
			a.assignFailed(snapshot, group, err)
			snapshot.MarkFailed(group, err)
			logger.WithFields(map[string]interface{}{
				"report_type": string(rt),
				"group":       group,
				"source_kind": sourceKind(plan, group),
			}).WithError(err).Warn("Source unavailable, using zero default")
		}
	}

	if snapshot.Overview != nil {
		snapshot.Overview.Finalize()
	}
	return snapshot, nil
}

// PointInTimeGroups returns, sorted, the groups of rt whose sources ignore
// the window. Their values for a past day are today's values.
func (a *Aggregator) PointInTimeGroups(rt stats.ReportType) []string {
	plan, ok := a.plans[rt]
	if !ok {
		return nil
	}
	var groups []string
	for _, group := range plan.groups() {
		if src, ok := plan.Counters[group].(sources.PointInTimeSource); ok && src.PointInTime() {
			groups = append(groups, group)
		}
	}
	return groups
}

func (a *Aggregator) fetch(ctx context.Context, plan Plan, group string, w stats.Window, out *fetchResult) error {
	kind := sourceKind(plan, group)
	ctx, span := observability.Tracer().Start(ctx, "source.fetch",
		trace.WithAttributes(
			attribute.String("report.type", string(plan.ReportType)),
			attribute.String("source.group", group),
			attribute.String("source.kind", kind),
		),
	)
	defer span.End()

	start := time.Now()
	var err error
	if src, ok := plan.Counters[group]; ok {
		out.count = src.Fetch(ctx, w)
		err = out.count.Err
	} else {
		out.contributor = plan.Contributors[group].Fetch(ctx, w)
		err = out.contributor.Err
	}

	status := observability.OutcomeOK
	if err != nil {
		status = observability.OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "source unavailable")
	}
	a.metrics.RecordFetch(kind, group, status, time.Since(start))
	return err
}

func (a *Aggregator) assign(s *stats.Snapshot, plan Plan, group string, r fetchResult) error {
	if _, ok := plan.Counters[group]; ok {
		slot := overviewSlots[group](s.Overview)
		*slot = r.count.Value
		return nil
	}
	report := r.contributor.Report
	if report.Failed() {
		return errors.New(report.Error)
	}
	if report.Records == nil {
		report.Records = []stats.ContributorRecord{}
	}
	*contributorSlot(s.Contributors, group) = report
	return nil
}

// assignFailed resets group to its zero default
func (a *Aggregator) assignFailed(s *stats.Snapshot, group string, err error) {
	if s.Overview != nil {
		if slot, ok := overviewSlots[group]; ok {
			*slot(s.Overview) = 0
		}
		return
	}
	if s.Contributors != nil {
		if slot := contributorSlot(s.Contributors, group); slot != nil {
			*slot = stats.FailedContributorReport(err)
		}
	}
}

func sourceKind(plan Plan, group string) string {
	if src, ok := plan.Counters[group]; ok {
		return src.Kind()
	}
	if src, ok := plan.Contributors[group]; ok {
		return src.Kind()
	}
	return "unknown"
}
