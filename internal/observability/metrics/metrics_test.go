package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("pipeline", "daily_costs"),
		attribute.String("subscription_id", "456"),
		attribute.String("reason", "upstream"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "pipeline" && attrs[1].Key != "pipeline" {
		t.Fatalf("expected pipeline to be retained")
	}
	if attrs[0].Key != "reason" && attrs[1].Key != "reason" {
		t.Fatalf("expected reason to be retained")
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordIngest(context.Background(), "daily_costs", 1, 1, time.Second, errors.New("boom"))
	m.RecordRateLimitAllowed(context.Background(), "/cost/month-to-date")
	m.RecordRateLimitDenied(context.Background(), "/cost/month-to-date", "exhausted")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordIngest(context.Background(), "service_costs", 3, 0, time.Millisecond, nil)
}

func TestNewUsesIngestMeterAndBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := New(Config{ServiceName: "azurecost", MeterName: "billing/ingest", DurationBuckets: []float64{1, 10}}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordIngest(context.Background(), "daily_costs", 2, 1, 3*time.Second, nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(rm.ScopeMetrics) != 1 {
		t.Fatalf("expected one scope, got %d", len(rm.ScopeMetrics))
	}
	scope := rm.ScopeMetrics[0]
	if scope.Scope.Name != "billing/ingest" {
		t.Fatalf("unexpected meter name %q", scope.Scope.Name)
	}

	for _, metric := range scope.Metrics {
		if metric.Name != "azurecost_ingest_duration_seconds" {
			continue
		}
		hist, ok := metric.Data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) != 1 {
			t.Fatalf("unexpected duration data %#v", metric.Data)
		}
		bounds := hist.DataPoints[0].Bounds
		if len(bounds) != 2 || bounds[0] != 1 || bounds[1] != 10 {
			t.Fatalf("unexpected bounds %v", bounds)
		}
		return
	}
	t.Fatal("duration histogram not recorded")
}

func TestMeterNameFallsBack(t *testing.T) {
	if got := (Config{ServiceName: "cost-api"}).meterName(); got != "cost-api" {
		t.Fatalf("expected service name fallback, got %q", got)
	}
	if got := (Config{}).meterName(); got != "azurecost" {
		t.Fatalf("expected default meter name, got %q", got)
	}
}
