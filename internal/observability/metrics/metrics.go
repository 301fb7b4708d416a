package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string

	// MeterName scopes the ingest instruments; ServiceName is the fallback.
	MeterName       string
	ExportInterval  time.Duration
	DurationBuckets []float64
}

// Metrics exposes ingestion instruments exported over OTLP.
type Metrics struct {
	ingestRuns       metric.Int64Counter
	ingestSaved      metric.Int64Counter
	ingestRejected   metric.Int64Counter
	ingestDuration   metric.Float64Histogram
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", interval),
		)
	}

	return provider, nil
}

// New configures the ingestion instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.meterName())

	ingestRuns, err := meter.Int64Counter("azurecost_ingest_runs_total")
	if err != nil {
		return nil, err
	}
	ingestSaved, err := meter.Int64Counter("azurecost_ingest_records_saved_total")
	if err != nil {
		return nil, err
	}
	ingestRejected, err := meter.Int64Counter("azurecost_ingest_records_rejected_total")
	if err != nil {
		return nil, err
	}
	durationOpts := []metric.Float64HistogramOption{metric.WithUnit("s")}
	if len(cfg.DurationBuckets) > 0 {
		durationOpts = append(durationOpts, metric.WithExplicitBucketBoundaries(cfg.DurationBuckets...))
	}
	ingestDuration, err := meter.Float64Histogram("azurecost_ingest_duration_seconds", durationOpts...)
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("azurecost_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("azurecost_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ingestRuns:       ingestRuns,
		ingestSaved:      ingestSaved,
		ingestRejected:   ingestRejected,
		ingestDuration:   ingestDuration,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

func (c Config) meterName() string {
	if name := strings.TrimSpace(c.MeterName); name != "" {
		return name
	}
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return "azurecost"
}

// RecordIngest records one fetch-process-save run of a pipeline.
func (m *Metrics) RecordIngest(ctx context.Context, pipeline string, saved, rejected int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = ClassifySchedulerJobReason(err)
	}
	pipelineAttr := attribute.String("pipeline", strings.TrimSpace(pipeline))
	m.ingestRuns.Add(ctx, 1, metric.WithAttributes(FilterAttributes(pipelineAttr, attribute.String("outcome", outcome))...))
	m.ingestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(FilterAttributes(pipelineAttr)...))
	if saved > 0 {
		m.ingestSaved.Add(ctx, int64(saved), metric.WithAttributes(FilterAttributes(pipelineAttr)...))
	}
	if rejected > 0 {
		m.ingestRejected.Add(ctx, int64(rejected), metric.WithAttributes(FilterAttributes(pipelineAttr)...))
	}
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"pipeline":    {},
	"outcome":     {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
