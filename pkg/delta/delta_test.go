package delta

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/storage"
)

func day(t *testing.T, s string) stats.Day {
	t.Helper()
	d, err := stats.ParseDay(s, time.UTC)
	require.NoError(t, err)
	return d
}

func overview(t *testing.T, date string, publishIn int64) *stats.Snapshot {
	t.Helper()
	s, err := stats.NewSnapshot(stats.ReportOverview, day(t, date), time.Time{})
	require.NoError(t, err)
	s.Overview.Traffic.PublishIn = publishIn
	return s
}

func TestCompute_PublishInChange(t *testing.T) {
	deltas := Index(Compute(overview(t, "2026-03-14", 1200000), overview(t, "2026-03-13", 1195000)))

	d := deltas[stats.GroupPublishIn]
	assert.Equal(t, int64(5000), d.Delta)
	require.NotNil(t, d.Percent)
	assert.InDelta(t, 0.42, *d.Percent, 0.005)
	assert.Equal(t, stats.TrendUp, d.Trend())
}

func TestCompute_ZeroBaseline(t *testing.T) {
	today := overview(t, "2026-03-14", 1200000)
	deltas := Index(Compute(today, stats.ZeroSnapshot(stats.ReportOverview, day(t, "2026-03-13"))))

	d := deltas[stats.GroupPublishIn]
	assert.Equal(t, int64(1200000), d.Delta)
	assert.Nil(t, d.Percent)
}

func TestCompute_IdenticalSnapshotsHaveNoChange(t *testing.T) {
	a := overview(t, "2026-03-14", 77)
	a.Overview.Errors.Connect = 3
	a.Overview.Finalize()
	b := overview(t, "2026-03-14", 77)
	b.Overview.Errors.Connect = 3
	b.Overview.Finalize()

	deltas := Compute(a, b)

	require.Len(t, deltas, len(a.Leaves()))
	for _, d := range deltas {
		assert.Zero(t, d.Delta, d.Path)
		assert.Equal(t, stats.TrendUnchanged, d.Trend(), d.Path)
	}
}

func TestCompute_UnionOfLeaves(t *testing.T) {
	today := overview(t, "2026-03-14", 5)
	yesterday := &stats.Snapshot{
		Date:         "2026-03-13",
		ReportType:   stats.ReportContributors,
		Contributors: &stats.ContributorStats{ErrorSources: stats.ContributorReport{Total: 9}},
	}

	deltas := Index(Compute(today, yesterday))

	assert.Equal(t, int64(5), deltas[stats.GroupPublishIn].Delta)
	assert.Equal(t, int64(-9), deltas["errorSources.total"].Delta)
	assert.Equal(t, stats.TrendDown, deltas["errorSources.total"].Trend())
}

type fakeGetter struct {
	lookup storage.Lookup
	asked  stats.Day
}

func (f *fakeGetter) Get(ctx context.Context, rt stats.ReportType, d stats.Day) storage.Lookup {
	f.asked = d
	return f.lookup
}

type fakeLive struct {
	snap  *stats.Snapshot
	err   error
	calls int
}

func (f *fakeLive) Aggregate(ctx context.Context, rt stats.ReportType, d stats.Day) (*stats.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func TestResolver_Stored(t *testing.T) {
	stored := overview(t, "2026-03-13", 1195000)
	getter := &fakeGetter{lookup: storage.Lookup{Snapshot: stored, Status: storage.Found}}
	live := &fakeLive{}

	snap, baseline := NewResolver(getter, live).Previous(context.Background(), stats.ReportOverview, day(t, "2026-03-14"))

	assert.Equal(t, BaselineStored, baseline)
	assert.Same(t, stored, snap)
	assert.Equal(t, "2026-03-13", getter.asked.String())
	assert.Zero(t, live.calls)
}

func TestResolver_MissingFallsBackToLive(t *testing.T) {
	getter := &fakeGetter{lookup: storage.Lookup{
		Snapshot: stats.ZeroSnapshot(stats.ReportOverview, day(t, "2026-03-13")),
		Status:   storage.Missing,
	}}
	live := &fakeLive{snap: overview(t, "2026-03-13", 10)}

	snap, baseline := NewResolver(getter, live).Previous(context.Background(), stats.ReportOverview, day(t, "2026-03-14"))

	assert.Equal(t, BaselineLive, baseline)
	assert.Equal(t, int64(10), snap.Overview.Traffic.PublishIn)
	assert.Equal(t, 1, live.calls)
}

func TestResolver_MissingWithoutLiveIsZero(t *testing.T) {
	getter := &fakeGetter{lookup: storage.Lookup{Status: storage.Missing}}

	snap, baseline := NewResolver(getter, nil).Previous(context.Background(), stats.ReportOverview, day(t, "2026-03-14"))

	assert.Equal(t, BaselineZero, baseline)
	for _, leaf := range snap.Leaves() {
		assert.Zero(t, leaf.Value, leaf.Path)
	}
}

func TestResolver_UnreadableIsZeroWithoutLive(t *testing.T) {
	getter := &fakeGetter{lookup: storage.Lookup{Status: storage.Unreadable, Err: storage.ErrSnapshotUnreadable}}
	live := &fakeLive{}

	_, baseline := NewResolver(getter, live).Previous(context.Background(), stats.ReportOverview, day(t, "2026-03-14"))

	assert.Equal(t, BaselineZero, baseline)
	assert.Zero(t, live.calls)
}

func TestResolver_LiveFailureIsZero(t *testing.T) {
	getter := &fakeGetter{lookup: storage.Lookup{Status: storage.Missing}}
	live := &fakeLive{err: errors.New("cancelled")}

	snap, baseline := NewResolver(getter, live).Previous(context.Background(), stats.ReportContributors, day(t, "2026-03-14"))

	assert.Equal(t, BaselineZero, baseline)
	require.NotNil(t, snap.Contributors)
}

type pointInTimeLive struct {
	fakeLive
	groups []string
}

func (f *pointInTimeLive) PointInTimeGroups(rt stats.ReportType) []string {
	return f.groups
}

func TestResolver_LiveMarksPointInTimeGroups(t *testing.T) {
	getter := &fakeGetter{lookup: storage.Lookup{Status: storage.Missing}}
	collected := overview(t, "2026-03-13", 10)
	collected.MarkFailed(stats.GroupDeviceThings, errors.New("throttled"))
	live := &pointInTimeLive{
		fakeLive: fakeLive{snap: collected},
		groups:   []string{stats.GroupAccountThings, stats.GroupDeviceThings},
	}

	snap, baseline := NewResolver(getter, live).Previous(context.Background(), stats.ReportOverview, day(t, "2026-03-14"))

	assert.Equal(t, BaselineLive, baseline)
	reason, ok := snap.Unavailable(stats.GroupAccountThings)
	assert.True(t, ok)
	assert.Equal(t, ErrNotRecollectable.Error(), reason)
	reason, ok = snap.Unavailable(stats.GroupDeviceThings)
	assert.True(t, ok)
	assert.Equal(t, "throttled", reason)
	_, ok = snap.LeafUnavailable(stats.GroupTotalThings)
	assert.True(t, ok)
	_, ok = snap.Unavailable(stats.GroupPublishIn)
	assert.False(t, ok)
}
