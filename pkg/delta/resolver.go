package delta

import (
	"context"
	"errors"
	"fmt"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/storage"
)

// Baseline tells where the previous-day snapshot came from
type Baseline string

const (
	BaselineStored Baseline = "stored"
	BaselineLive   Baseline = "live"
	BaselineZero   Baseline = "zero"
)

// LiveAggregator re-collects a day from the sources
type LiveAggregator interface {
	Aggregate(ctx context.Context, rt stats.ReportType, day stats.Day) (*stats.Snapshot, error)
}

// ErrNotRecollectable marks a baseline group whose source only reports the
// current state, so its value for a past day is unknown
var ErrNotRecollectable = errors.New("point-in-time count cannot be re-collected for a past day")

// pointInTimeReporter is implemented by live aggregators that know which
// groups ignore the report window
type pointInTimeReporter interface {
	PointInTimeGroups(rt stats.ReportType) []string
}

// Resolver loads the snapshot a report is compared against
type Resolver struct {
	store SnapshotGetter
	live  LiveAggregator
}

// SnapshotGetter is the read side of storage.SnapshotStore
type SnapshotGetter interface {
	Get(ctx context.Context, rt stats.ReportType, day stats.Day) storage.Lookup
}

// NewResolver creates a resolver. A nil live aggregator disables the live
// fallback, so a missing previous day becomes the zero baseline.
func NewResolver(store SnapshotGetter, live LiveAggregator) *Resolver {
	return &Resolver{store: store, live: live}
}

// Previous returns the baseline for the day before day. It never fails:
// an unreadable document, or a live re-collection that errors, degrades to
// the zero baseline. A live result is not persisted. Groups the live run
// could not fill, including point-in-time counts, are listed in the
// baseline's SourceErrors so the report can mark their change unknown.
func (r *Resolver) Previous(ctx context.Context, rt stats.ReportType, day stats.Day) (*stats.Snapshot, Baseline) {
	prev := day.Prev()
	logger := observability.FromContext(ctx).WithField("baseline_date", prev.String())

	lookup := r.store.Get(ctx, rt, prev)
	switch lookup.Status {
	case storage.Found:
		return lookup.Snapshot, BaselineStored
	case storage.Unreadable:
		logger.WithError(lookup.Err).Warn("Previous snapshot unreadable, using zero baseline")
		return stats.ZeroSnapshot(rt, prev), BaselineZero
	}

	if r.live == nil {
		logger.Info("Previous snapshot missing, using zero baseline")
		return stats.ZeroSnapshot(rt, prev), BaselineZero
	}

	logger.Info("Previous snapshot missing, collecting it live")
	snap, err := r.live.Aggregate(ctx, rt, prev)
	if err != nil {
		logger.WithError(fmt.Errorf("live baseline: %w", err)).Warn("Using zero baseline")
		return stats.ZeroSnapshot(rt, prev), BaselineZero
	}

	if pit, ok := r.live.(pointInTimeReporter); ok {
		for _, group := range pit.PointInTimeGroups(rt) {
			if _, failed := snap.Unavailable(group); !failed {
				snap.MarkFailed(group, ErrNotRecollectable)
			}
		}
	}
	if failed := snap.FailedGroups(); len(failed) > 0 {
		logger.WithField("groups", failed).Warn("Live baseline is incomplete")
	}
	return snap, BaselineLive
}
