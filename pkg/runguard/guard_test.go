package runguard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

func setupGuard(t *testing.T) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return New(client, time.Hour), mr
}

func testDay(t *testing.T) stats.Day {
	t.Helper()
	d, err := stats.ParseDay("2026-03-14", time.UTC)
	require.NoError(t, err)
	return d
}

func TestKey(t *testing.T) {
	assert.Equal(t, "fleet-report:overview:2026-03-14", Key(stats.ReportOverview, testDay(t)))
}

func TestAcquire_Exclusive(t *testing.T) {
	g, mr := setupGuard(t)
	ctx := context.Background()
	day := testDay(t)

	lease, err := g.Acquire(ctx, stats.ReportOverview, day, "run-1")
	require.NoError(t, err)
	assert.True(t, lease.Held())
	assert.Equal(t, time.Hour, mr.TTL(Key(stats.ReportOverview, day)))

	_, err = g.Acquire(ctx, stats.ReportOverview, day, "run-2")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	other, err := g.Acquire(ctx, stats.ReportContributors, day, "run-3")
	require.NoError(t, err)
	assert.True(t, other.Held())

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists(Key(stats.ReportOverview, day)))

	again, err := g.Acquire(ctx, stats.ReportOverview, day, "run-4")
	require.NoError(t, err)
	assert.True(t, again.Held())
}

func TestRelease_KeepsForeignLease(t *testing.T) {
	g, mr := setupGuard(t)
	ctx := context.Background()
	day := testDay(t)

	lease, err := g.Acquire(ctx, stats.ReportOverview, day, "run-1")
	require.NoError(t, err)

	// lease expired and someone else took it
	key := Key(stats.ReportOverview, day)
	require.NoError(t, mr.Set(key, "run-2"))

	require.NoError(t, lease.Release(ctx))
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "run-2", got)
}

func TestAcquire_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	lease, err := New(client, time.Hour).Acquire(context.Background(), stats.ReportOverview, testDay(t), "run-1")
	require.NoError(t, err)
	assert.False(t, lease.Held())
	assert.NoError(t, lease.Release(context.Background()))
}

func TestNilGuard(t *testing.T) {
	var g *Guard
	lease, err := g.Acquire(context.Background(), stats.ReportOverview, testDay(t), "run-1")
	require.NoError(t, err)
	assert.False(t, lease.Held())
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
