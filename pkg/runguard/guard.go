// Package runguard suppresses concurrent duplicate report runs for the same
// report type and day using a Redis lease.
package runguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// ErrAlreadyRunning is returned when another run holds the lease
var ErrAlreadyRunning = errors.New("report run already in progress")

const keyPrefix = "fleet-report"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// NewClient connects to Redis at url and verifies the connection
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Guard hands out one lease per report type and day. A nil *Guard grants
// every request.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a guard whose leases expire after ttl
func New(client *redis.Client, ttl time.Duration) *Guard {
	return &Guard{client: client, ttl: ttl}
}

// Key returns the lease key for a report type and day
func Key(rt stats.ReportType, day stats.Day) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, rt, day)
}

// Acquire takes the lease for rt and day on behalf of token. It returns
// ErrAlreadyRunning when the lease is held elsewhere. Redis errors fail
// open: the run proceeds with a no-op lease.
func (g *Guard) Acquire(ctx context.Context, rt stats.ReportType, day stats.Day, token string) (*Lease, error) {
	if g == nil || g.client == nil {
		return &Lease{}, nil
	}

	key := Key(rt, day)
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		observability.FromContext(ctx).
			WithField("key", key).
			WithError(err).
			Warn("Run guard unavailable, proceeding without lease")
		return &Lease{}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	return &Lease{client: g.client, key: key, token: token}, nil
}

// Lease is a held run guard
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Held reports whether the lease is backed by Redis
func (l *Lease) Held() bool {
	return l != nil && l.client != nil
}

// Release gives the lease back if it is still ours
func (l *Lease) Release(ctx context.Context) error {
	if !l.Held() {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
