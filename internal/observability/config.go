package observability

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/azurecost/internal/config"
)

const (
	defaultMeterName      = "azurecost/ingest"
	defaultExportInterval = 10 * time.Second
)

// Ingest runs span a billing API round trip plus a database write, so the
// buckets reach further than the request histogram's.
var defaultIngestBuckets = []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300}

// Config is the logging, tracing and ingest metrics setup for one process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	// IngestMeterName scopes the OTLP ingest instruments.
	IngestMeterName string
	// IngestExportInterval is how often ingest counters are shipped.
	IngestExportInterval time.Duration
	// IngestDurationBuckets bounds the fetch-process-save latency histogram.
	IngestDurationBuckets []float64
}

// LoadConfig layers observability env vars over the app config. OTLP is on
// whenever a collector endpoint is known unless OTEL_ENABLED says otherwise.
func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "azurecost"
	}

	endpoint := envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	protocol := strings.ToLower(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	if traces := envString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); traces != "" {
		protocol = strings.ToLower(traces)
	}

	logLevel := strings.ToLower(envString("LOG_LEVEL", "info"))
	if cfg.Debug && logLevel == "info" {
		logLevel = "debug"
	}

	return Config{
		ServiceName: serviceName,
		Environment: envString("DEPLOYMENT_ENV", cfg.Environment),
		Version:     envString("SERVICE_VERSION", cfg.AppVersion),

		LogLevel:  logLevel,
		LogFormat: strings.ToLower(envString("LOG_FORMAT", "json")),

		OtelEnabled:          envBool("OTEL_ENABLED", endpoint != ""),
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    clampRatio(envFloat("OTEL_SAMPLING_RATIO", 0.1)),

		IngestMeterName:       envString("INGEST_METER_NAME", defaultMeterName),
		IngestExportInterval:  envDuration("INGEST_METRICS_INTERVAL", defaultExportInterval),
		IngestDurationBuckets: envBuckets("INGEST_DURATION_BUCKETS", defaultIngestBuckets),
	}
}

// Debug reports whether verbose logging applies.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case config.EnvDevelopment, config.EnvTesting, "dev", "local", "test":
		return true
	default:
		return false
	}
}

func clampRatio(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func envString(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(envString(key, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(envString(key, ""), 64)
	if err != nil {
		return def
	}
	return parsed
}

func envDuration(key string, def time.Duration) time.Duration {
	parsed, err := time.ParseDuration(envString(key, ""))
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// envBuckets reads a comma separated list of positive bounds. Any bad entry
// falls back to def as a whole.
func envBuckets(key string, def []float64) []float64 {
	raw := envString(key, "")
	if raw == "" {
		return def
	}
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			return def
		}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
