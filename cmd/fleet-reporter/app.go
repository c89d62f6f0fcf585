package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/aggregator"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/config"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/pipeline"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/report"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/runguard"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/storage"
)

// app holds everything main wires together
type app struct {
	runner     *pipeline.Runner
	store      storage.SnapshotStore
	redis      *redis.Client
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	thresholds *config.ThresholdWatcher
	otel       *observability.OTelProviders
}

func buildApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}

	if cfg.Observability.MetricsEnabled {
		a.metrics = observability.NewMetrics(a.registry)
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init opentelemetry: %w", err)
	}
	a.otel = providers
	if providers != nil {
		om, err := observability.NewOTelMetrics()
		if err != nil {
			return nil, fmt.Errorf("init otel metrics: %w", err)
		}
		a.metrics.AttachOTel(om)
	}

	a.store, err = storage.New(ctx, cfg.Storage, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}

	a.thresholds, err = config.NewThresholdWatcher(cfg.Report.ThresholdsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}

	var guard *runguard.Guard
	if cfg.Redis.URL != "" {
		client, err := runguard.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, running without run guard")
		} else {
			a.redis = client
			guard = runguard.New(client, cfg.Redis.GuardTTL)
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Sources.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	clients := aggregator.Clients{
		CloudWatch: cloudwatch.NewFromConfig(awsCfg),
		Things:     iot.NewFromConfig(awsCfg),
		Logs:       cloudwatchlogs.NewFromConfig(awsCfg),
		Athena:     athena.NewFromConfig(awsCfg),
	}

	agg, err := aggregator.New(
		aggregator.DefaultPlans(cfg.Sources, clients, a.metrics),
		aggregator.WithFetchTimeout(cfg.Sources.FetchTimeout),
		aggregator.WithConcurrency(cfg.Sources.Concurrency),
		aggregator.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("init aggregator: %w", err)
	}

	a.runner, err = pipeline.New(pipeline.Config{
		Aggregator: agg,
		Store:      a.store,
		Renderer: report.NewRenderer(report.Options{
			TitlePrefix:     cfg.Report.TitlePrefix,
			Location:        cfg.Report.Location,
			DisplayTopN:     cfg.Report.DisplayTopN,
			IdentifierWidth: cfg.Report.IdentifierWidth,
		}),
		Thresholds:   a.thresholds,
		Guard:        guard,
		Metrics:      a.metrics,
		Logger:       logger,
		Location:     cfg.Report.Location,
		LiveFallback: cfg.Report.PreviousFallback == config.FallbackLive,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// registerCleanup hands the app's resources to the shutdown manager
func (a *app) registerCleanup(sm *observability.ShutdownManager, logger *observability.Logger) {
	if a.otel != nil {
		sm.Register("opentelemetry", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, a.otel, logger)
		})
	}
	if a.redis != nil {
		sm.Register("redis", func(context.Context) error {
			return a.redis.Close()
		})
	}
}
