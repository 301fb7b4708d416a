package observability

import (
	"context"

	"github.com/smallbiznis/azurecost/internal/observability/logger"
	"github.com/smallbiznis/azurecost/internal/observability/metrics"
	"github.com/smallbiznis/azurecost/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	loggingModule,
	tracingModule,
	metricsModule,
	fx.Invoke(announce),
)

var loggingModule = fx.Options(
	fx.Provide(provideLoggerConfig, logger.New),
)

var tracingModule = fx.Options(
	fx.Provide(provideTracingConfig, tracing.NewProvider),
	// The tracer provider registers itself globally; force its construction.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

// Ingestion counters go out over OTLP; scheduler and HTTP metrics live on
// the default prometheus registry behind /metrics or the metrics pusher.
var metricsModule = fx.Options(
	fx.Provide(
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		provideSchedulerMetrics,
	),
)

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
		MeterName:        cfg.IngestMeterName,
		ExportInterval:   cfg.IngestExportInterval,
		DurationBuckets:  cfg.IngestDurationBuckets,
	}
}

func provideSchedulerMetrics(cfg metrics.Config) *metrics.SchedulerMetrics {
	return metrics.SchedulerWithConfig(cfg)
}

func announce(lc fx.Lifecycle, cfg Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("observability configured",
				zap.String("log_level", cfg.LogLevel),
				zap.String("log_format", cfg.LogFormat),
				zap.Bool("otel_enabled", cfg.OtelEnabled),
				zap.String("otel_protocol", cfg.OtelExporterProtocol),
				zap.Float64("otel_sampling_ratio", cfg.OtelSamplingRatio),
				zap.String("ingest_meter", cfg.IngestMeterName),
				zap.Duration("ingest_export_interval", cfg.IngestExportInterval),
			)
			return nil
		},
	})
}
