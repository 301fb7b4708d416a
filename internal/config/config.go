package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Debug       bool
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	Azure     AzureConfig
	Ingest    IngestConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Push      MetricsPushConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBPoolTimeout     int
	DBConnectRetries  int
	DBConnectBackoff  time.Duration
}

// AzureConfig carries the service principal used against Cost Management.
type AzureConfig struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

// Scope returns the ARM scope for the configured subscription.
func (a AzureConfig) Scope() string {
	return "/subscriptions/" + strings.TrimSpace(a.SubscriptionID)
}

type IngestConfig struct {
	Workers         int
	DefaultCurrency string
	FetchTimeout    time.Duration
	LookbackDays    int
}

type SchedulerConfig struct {
	Enabled         bool
	DailyInterval   time.Duration
	ServiceInterval time.Duration
	ScheduleFile    string
	LockEnabled     bool
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FetchRate     float64
	FetchBurst    int
}

// MetricsPushConfig configures pushing process metrics to a remote
// collector. Exporter is prometheus_remote_write or prometheus_pushgateway.
type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := normalizeEnvironment(getenv("ENVIRONMENT", EnvDevelopment))

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "azurecost"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		Debug:        getenvBool("DEBUG", false),
		HTTPAddr:     httpAddr(),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", ""),
		Azure: AzureConfig{
			TenantID:       strings.TrimSpace(getenv("AZURE_TENANT_ID", "")),
			ClientID:       strings.TrimSpace(getenv("AZURE_CLIENT_ID", "")),
			ClientSecret:   strings.TrimSpace(getenv("AZURE_CLIENT_SECRET", "")),
			SubscriptionID: strings.TrimSpace(getenv("AZURE_SUBSCRIPTION_ID", "")),
		},
		Ingest: IngestConfig{
			Workers:         getenvInt("BILLING_API_WORKERS", 4),
			DefaultCurrency: strings.ToUpper(strings.TrimSpace(getenv("DEFAULT_CURRENCY", "INR"))),
			FetchTimeout:    time.Duration(getenvInt("BILLING_API_TIMEOUT_SECONDS", 60)) * time.Second,
			LookbackDays:    getenvInt("DAILY_COST_LOOKBACK_DAYS", 7),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getenvBool("ENABLE_SCHEDULER", true),
			DailyInterval:   hoursMinutes("DAILY_COST_HOUR", 24, "DAILY_COST_MINUTE", 0),
			ServiceInterval: hoursMinutes("SERVICE_COST_HOUR", 6, "SERVICE_COST_MINUTE", 0),
			ScheduleFile:    strings.TrimSpace(getenv("SCHEDULE_CONFIG_PATH", "")),
			LockEnabled:     getenvBool("SCHEDULER_DISTRIBUTED_LOCK", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("REDIS_DB", 0),
			FetchRate:     getenvFloat("RATE_LIMIT_FETCH_RATE", 0.5),
			FetchBurst:    getenvInt("RATE_LIMIT_FETCH_BURST", 5),
		},
		Push: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", "prometheus_pushgateway"))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  time.Duration(getenvInt("METRICS_PUSH_INTERVAL_SECONDS", 60)) * time.Second,
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "azurecost"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_POOL_SIZE", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_POOL_SIZE", 5) + getenvInt("DATABASE_MAX_OVERFLOW", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_POOL_RECYCLE", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		DBPoolTimeout:     getenvInt("DATABASE_POOL_TIMEOUT", 30),
		DBConnectRetries:  getenvInt("DATABASE_CONNECT_RETRIES", 3),
		DBConnectBackoff:  time.Duration(getenvInt("DATABASE_CONNECT_BACKOFF_SECONDS", 2)) * time.Second,
	}

	return cfg
}

func (c Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ShowDebugInfo reports whether error details may be exposed to clients.
func (c Config) ShowDebugInfo() bool {
	return c.Debug || c.IsDevelopment()
}

func normalizeEnvironment(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case EnvProduction, "prod":
		return EnvProduction
	case EnvTesting, "test":
		return EnvTesting
	default:
		return EnvDevelopment
	}
}

func httpAddr() string {
	if addr := strings.TrimSpace(os.Getenv("HTTP_ADDR")); addr != "" {
		return addr
	}
	host := getenv("HOST", "")
	port := getenv("PORT", "8080")
	return host + ":" + port
}

func hoursMinutes(hourKey string, defHours int, minuteKey string, defMinutes int) time.Duration {
	d := time.Duration(getenvInt(hourKey, defHours))*time.Hour +
		time.Duration(getenvInt(minuteKey, defMinutes))*time.Minute
	if d <= 0 {
		return time.Duration(defHours)*time.Hour + time.Duration(defMinutes)*time.Minute
	}
	return d
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
