// Package config loads the reporter configuration from environment variables.
//
// # Environment
//
// Storage:
//
//	REPORTER_STORAGE_TYPE="s3"          # s3, filesystem
//	REPORTER_STORAGE_PREFIX="iot-reports"
//	REPORTER_S3_BUCKET="fleet-reports"
//	REPORTER_FILESYSTEM_ROOT="/var/lib/fleet-reporter"
//
// Sources:
//
//	REPORTER_ACCOUNT_THING_TYPE="account"
//	REPORTER_LOG_GROUP="AWSIotLogsV2"
//	REPORTER_ATHENA_OUTPUT="s3://athena-results/fleet/"
//	REPORTER_POLL_INTERVAL="1s"
//	REPORTER_MAX_POLLS="60"
//	REPORTER_SOURCE_CONCURRENCY="0"
//
// Report:
//
//	REPORTER_TIMEZONE="Asia/Shanghai"
//	REPORTER_PREVIOUS_FALLBACK="live"   # live, zero
//	REPORTER_THRESHOLDS_FILE="/etc/fleet-reporter/thresholds.yaml"
//
// Run guard and schedule:
//
//	REPORTER_REDIS_URL="redis://localhost:6379/0"
//	REPORTER_SCHEDULE_OVERVIEW="0 9 * * *"
//
// Observability:
//
//	REPORTER_LOG_LEVEL="info"
//	REPORTER_OTEL_ENABLED="true"
//	REPORTER_OTEL_ENDPOINT="otel-collector:4317"
//
// # Severity Thresholds
//
// The error severity ladder can be overridden by a YAML file that is
// reloaded whenever it changes:
//
//	watcher, err := config.NewThresholdWatcher(cfg.Report.ThresholdsFile, logger)
//	go watcher.Run(ctx)
//	ladder := watcher.Current()
//
// # Related Packages
//
//   - pkg/storage: storage configuration
//   - pkg/report: severity ladder
package config
