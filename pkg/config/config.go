package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/storage"
)

// Previous-day fallback modes
const (
	FallbackLive = "live"
	FallbackZero = "zero"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Sources configuration
	Sources SourcesConfig

	// Report configuration
	Report ReportConfig

	// Redis configuration for the run guard
	Redis RedisConfig

	// Schedule configuration for daemon mode
	Schedule ScheduleConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds the health/metrics server configuration
type ServerConfig struct {
	HealthPort      string
	ShutdownTimeout time.Duration
}

// SourcesConfig holds the backend coordinates of every source connector
type SourcesConfig struct {
	Region string

	// CloudWatch direct counters
	MetricNamespace      string
	ConnectSuccessMetric string
	PublishInMetric      string
	PublishOutMetric     string
	SubscribeMetric      string

	// IoT registry paginated counters
	AccountThingType string
	DeviceThingType  string
	PageDelay        time.Duration
	MaxPages         int

	// Logs Insights async queries
	LogGroup string

	// Athena async queries
	AthenaDatabase       string
	AthenaWorkgroup      string
	AthenaOutputLocation string
	AthenaTable          string

	// Async query polling
	PollInterval time.Duration
	MaxPolls     int

	// Contributor Insights rules
	DuplicateAppClientsRule    string
	DuplicateDeviceClientsRule string
	ErrorSourcesRule           string
	ContributorTopN            int

	// Upper bound for one source fetch
	FetchTimeout time.Duration
	// Connectors in flight per report, 0 for all at once
	Concurrency  int
}

// ReportConfig holds rendering and baseline settings
type ReportConfig struct {
	Timezone         string
	Location         *time.Location
	TitlePrefix      string
	DisplayTopN      int
	IdentifierWidth  int
	PreviousFallback string
	ThresholdsFile   string
}

// RedisConfig holds the optional run guard backend
type RedisConfig struct {
	URL      string
	GuardTTL time.Duration
}

// ScheduleConfig holds cron specs per report type, evaluated in the report timezone
type ScheduleConfig struct {
	Overview     string
	Contributors string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Sources:       loadSourcesConfig(),
		Report:        loadReportConfig(),
		Redis:         loadRedisConfig(),
		Schedule:      loadScheduleConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HealthPort:      getEnv("REPORTER_HEALTH_PORT", "9090"),
		ShutdownTimeout: getEnvDuration("REPORTER_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.Type = getEnv("REPORTER_STORAGE_TYPE", cfg.Type)
	cfg.Prefix = getEnv("REPORTER_STORAGE_PREFIX", cfg.Prefix)
	cfg.FilesystemRoot = getEnv("REPORTER_FILESYSTEM_ROOT", cfg.FilesystemRoot)

	cfg.S3Endpoint = getEnv("REPORTER_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("REPORTER_S3_REGION", getEnv("AWS_REGION", cfg.S3Region))
	cfg.S3Bucket = getEnv("REPORTER_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("REPORTER_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("REPORTER_S3_SECRET_KEY", "")
	cfg.S3UsePathStyle = getEnvBool("REPORTER_S3_USE_PATH_STYLE", false)

	return cfg
}

func loadSourcesConfig() SourcesConfig {
	return SourcesConfig{
		Region: getEnv("REPORTER_AWS_REGION", getEnv("AWS_REGION", "ap-southeast-1")),

		MetricNamespace:      getEnv("REPORTER_METRIC_NAMESPACE", "AWS/IoT"),
		ConnectSuccessMetric: getEnv("REPORTER_METRIC_CONNECT_SUCCESS", "Connect.Success"),
		PublishInMetric:      getEnv("REPORTER_METRIC_PUBLISH_IN", "PublishIn.Success"),
		PublishOutMetric:     getEnv("REPORTER_METRIC_PUBLISH_OUT", "PublishOut.Success"),
		SubscribeMetric:      getEnv("REPORTER_METRIC_SUBSCRIBE", "Subscribe.Success"),

		AccountThingType: getEnv("REPORTER_ACCOUNT_THING_TYPE", "account"),
		DeviceThingType:  getEnv("REPORTER_DEVICE_THING_TYPE", "device"),
		PageDelay:        getEnvDuration("REPORTER_PAGE_DELAY", 100*time.Millisecond),
		MaxPages:         getEnvInt("REPORTER_MAX_PAGES", 10000),

		LogGroup: getEnv("REPORTER_LOG_GROUP", "AWSIotLogsV2"),

		AthenaDatabase:       getEnv("REPORTER_ATHENA_DATABASE", "iot_logs"),
		AthenaWorkgroup:      getEnv("REPORTER_ATHENA_WORKGROUP", "primary"),
		AthenaOutputLocation: getEnv("REPORTER_ATHENA_OUTPUT", ""),
		AthenaTable:          getEnv("REPORTER_ATHENA_TABLE", "iot_events"),

		PollInterval: getEnvDuration("REPORTER_POLL_INTERVAL", time.Second),
		MaxPolls:     getEnvInt("REPORTER_MAX_POLLS", 60),

		DuplicateAppClientsRule:    getEnv("REPORTER_RULE_DUPLICATE_APP_CLIENTS", "iot-duplicate-app-clientid"),
		DuplicateDeviceClientsRule: getEnv("REPORTER_RULE_DUPLICATE_DEVICE_CLIENTS", "iot-duplicate-device-clientid"),
		ErrorSourcesRule:           getEnv("REPORTER_RULE_ERROR_SOURCES", "iot-error-sources"),
		ContributorTopN:            getEnvInt("REPORTER_CONTRIBUTOR_TOP_N", 10),

		FetchTimeout: getEnvDuration("REPORTER_FETCH_TIMEOUT", 5*time.Minute),
		Concurrency:  getEnvInt("REPORTER_SOURCE_CONCURRENCY", 0),
	}
}

func loadReportConfig() ReportConfig {
	return ReportConfig{
		Timezone:         getEnv("REPORTER_TIMEZONE", "Asia/Shanghai"),
		TitlePrefix:      getEnv("REPORTER_TITLE_PREFIX", "IoT Fleet Daily Report"),
		DisplayTopN:      getEnvInt("REPORTER_DISPLAY_TOP_N", 5),
		IdentifierWidth:  getEnvInt("REPORTER_IDENTIFIER_WIDTH", 24),
		PreviousFallback: strings.ToLower(getEnv("REPORTER_PREVIOUS_FALLBACK", FallbackLive)),
		ThresholdsFile:   getEnv("REPORTER_THRESHOLDS_FILE", ""),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("REPORTER_REDIS_URL", ""),
		GuardTTL: getEnvDuration("REPORTER_RUN_GUARD_TTL", 2*time.Hour),
	}
}

func loadScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Overview:     getEnv("REPORTER_SCHEDULE_OVERVIEW", "0 9 * * *"),
		Contributors: getEnv("REPORTER_SCHEDULE_CONTRIBUTORS", "10 9 * * *"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("REPORTER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("REPORTER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("REPORTER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("REPORTER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("REPORTER_OTEL_SERVICE_NAME", "fleet-reporter"),
		OTelServiceVersion: getEnv("REPORTER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("REPORTER_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid. It also resolves the
// report timezone into Report.Location.
func (c *Config) Validate() error {
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be s3 or filesystem)", c.Storage.Type)
	}

	if c.Sources.PollInterval < 0 || c.Sources.PageDelay < 0 {
		return fmt.Errorf("poll interval and page delay must not be negative")
	}
	if c.Sources.MaxPolls <= 0 {
		return fmt.Errorf("max polls must be positive")
	}
	if c.Sources.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Sources.ContributorTopN <= 0 {
		return fmt.Errorf("contributor top-N must be positive")
	}
	if c.Sources.Concurrency < 0 {
		return fmt.Errorf("source concurrency must not be negative")
	}

	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return fmt.Errorf("invalid report timezone %q: %w", c.Report.Timezone, err)
	}
	c.Report.Location = loc

	switch c.Report.PreviousFallback {
	case FallbackLive, FallbackZero:
	default:
		return fmt.Errorf("invalid previous-day fallback: %s (must be live or zero)", c.Report.PreviousFallback)
	}
	if c.Report.DisplayTopN <= 0 {
		return fmt.Errorf("display top-N must be positive")
	}
	if c.Report.IdentifierWidth < 2 {
		return fmt.Errorf("identifier width must be at least 2")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
