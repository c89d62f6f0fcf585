// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, tracing, health checks and graceful shutdown for
// the fleet reporter.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	ctx = observability.WithLogger(ctx, logger)
//	ctx = observability.WithRunID(ctx, runID)
//	observability.FromContext(ctx).WithField("group", group).Warn("source failed")
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordFetch("paginated", "accountThingCount", observability.OutcomeOK, elapsed)
//
// A nil *Metrics records nothing, which keeps tests free of registries.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(store, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/pipeline: records run metrics
package observability
