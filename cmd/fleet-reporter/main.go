package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/async"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/config"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/pipeline"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

var version = "dev"

var (
	runOnce    = flag.Bool("run-once", false, "Run the report once, print it to stdout and exit")
	reportType = flag.String("report", "all", "Report type to run: overview, contributors or all")
	reportDate = flag.String("date", "", "Report date (YYYY-MM-DD). If empty, uses today in the report timezone")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// stdout carries the rendered report in run-once mode
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr).
		WithField("service", "fleet-reporter").
		WithField("version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to start")
		os.Exit(1)
	}

	if *runOnce {
		os.Exit(runOnceMode(ctx, a, logger))
	}

	if err := serve(ctx, cfg, a, logger); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

func runOnceMode(ctx context.Context, a *app, logger *observability.Logger) int {
	sm := observability.NewShutdownManager(logger, nil, 10*time.Second)
	a.registerCleanup(sm, logger)
	defer sm.Shutdown(context.Background())

	out := pipeline.WriterDeliverer{W: os.Stdout}

	var err error
	if *reportType == "all" {
		err = a.runner.RunAll(ctx, *reportDate, out)
	} else {
		_, err = a.runner.RunAndDeliver(ctx, *reportType, *reportDate, out)
	}
	if err != nil {
		logger.WithError(err).Error("Report run failed")
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, a *app, logger *observability.Logger) error {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(a.store, a.redis, version))
	if a.metrics != nil {
		router.Handle("/metrics", observability.MetricsHandler(a.registry))
	}

	server := &http.Server{
		Addr:              ":" + cfg.Server.HealthPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := cron.New(cron.WithLocation(cfg.Report.Location))
	out := pipeline.WriterDeliverer{W: os.Stdout}
	schedules := map[stats.ReportType]string{
		stats.ReportOverview:     cfg.Schedule.Overview,
		stats.ReportContributors: cfg.Schedule.Contributors,
	}
	for _, rt := range stats.ReportTypes() {
		spec := schedules[rt]
		if spec == "" {
			continue
		}
		if _, err := scheduler.AddFunc(spec, func() {
			defer observability.RecoverPanic(logger, "scheduled "+string(rt))
			_, _ = a.runner.RunAndDeliver(ctx, string(rt), "", out)
		}); err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"report_type": string(rt),
			"schedule":    spec,
			"timezone":    cfg.Report.Location.String(),
		}).Info("Report scheduled")
	}

	if cfg.Report.ThresholdsFile != "" {
		async.SafeGo(ctx, logger, 0, "threshold watcher", a.thresholds.Run)
	}

	sm := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	a.registerCleanup(sm, logger)
	sm.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		logger.WithField("addr", server.Addr).Info("Health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	scheduler.Start()
	logger.Info("Fleet reporter started")

	return sm.WaitForShutdown(ctx)
}
