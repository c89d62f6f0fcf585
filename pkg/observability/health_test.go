package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) HealthCheck(context.Context) error { return f.err }

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		_, client := newRedis(t)
		status := NewHealthChecker(fakePinger{}, client, "v1").Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, "v1", status.Version)
		assert.Contains(t, status.Dependencies, "snapshot_store")
		assert.Contains(t, status.Dependencies, "redis")
	})

	t.Run("store down is unhealthy", func(t *testing.T) {
		status := NewHealthChecker(fakePinger{err: errors.New("bucket gone")}, nil, "").Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "bucket gone", status.Dependencies["snapshot_store"].Message)
	})

	t.Run("redis down is degraded", func(t *testing.T) {
		mr, client := newRedis(t)
		mr.Close()
		status := NewHealthChecker(fakePinger{}, client, "").Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})
}

func TestHealthRoutes(t *testing.T) {
	router := mux.NewRouter()
	RegisterHealthRoutes(router, NewHealthChecker(fakePinger{err: errors.New("down")}, nil, ""))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusUnhealthy, body.Status)
}
