package sources

import (
	"context"
	"time"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// Connector kinds, used as metric and log labels
const (
	KindDirect      = "direct"
	KindPaginated   = "paginated"
	KindQuery       = "query"
	KindContributor = "contributor"
)

// CountResult is the outcome of a counter fetch. When Err is set Value is 0
// and the count must be treated as unavailable, not as zero events.
type CountResult struct {
	Value int64
	Err   error
}

// CountSource produces one scalar for a window. Fetch never panics on
// backend errors; failures are reported through CountResult.Err.
type CountSource interface {
	Kind() string
	Fetch(ctx context.Context, w stats.Window) CountResult
}

// PointInTimeSource is implemented by counters that report current state
// regardless of the window they are given
type PointInTimeSource interface {
	PointInTime() bool
}

// ContributorResult is the outcome of a contributor fetch. When Err is set
// Report is the failed form with zero totals and no records.
type ContributorResult struct {
	Report stats.ContributorReport
	Err    error
}

// ContributorSource produces a top-N contributor report for a window
type ContributorSource interface {
	Kind() string
	Fetch(ctx context.Context, w stats.Window) ContributorResult
}

func countFailure(err error) CountResult {
	return CountResult{Err: err}
}

func contributorFailure(err error) ContributorResult {
	return ContributorResult{Report: stats.FailedContributorReport(err), Err: err}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// floorPeriod rounds seconds down to a multiple of 60 with a minimum of 60
func floorPeriod(seconds int64) int32 {
	seconds -= seconds % 60
	if seconds < 60 {
		seconds = 60
	}
	return int32(seconds)
}
