package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/azurecost/internal/billingapi"
	"github.com/smallbiznis/azurecost/internal/clock"
	"github.com/smallbiznis/azurecost/internal/config"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"github.com/smallbiznis/azurecost/internal/observability/logger"
	"github.com/smallbiznis/azurecost/internal/observability/metrics"
	"github.com/smallbiznis/azurecost/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	PipelineDailyCosts   = "daily_costs"
	PipelineServiceCosts = "service_costs"
)

// Job is one fetch-process-save pipeline. Preprocess receives the current
// billing window and returns the valid records plus the rejected count.
type Job[R any] struct {
	Name       string
	Fetch      func(ctx context.Context) (*billingapi.QueryResult, error)
	Preprocess func(rows []costdomain.Row, start, end time.Time) ([]R, int, error)
	Save       func(ctx context.Context, periodID snowflake.ID, records []R) (int, error)
}

// PeriodResolver resolves the billing period a batch is saved against.
type PeriodResolver interface {
	GetOrCreatePeriod(ctx context.Context, start, end time.Time) (*costdomain.BillingPeriod, error)
}

// FetchProcessSave runs fetch, normalize, preprocess, period resolution and
// save in that order. Storage is not touched unless every step before it
// succeeded.
func FetchProcessSave[R any](ctx context.Context, periods PeriodResolver, now time.Time, job Job[R]) (costdomain.Result[R], error) {
	raw, err := job.Fetch(ctx)
	if err != nil {
		return costdomain.Result[R]{}, fmt.Errorf("fetch %s: %w", job.Name, err)
	}

	rows, err := Normalize(raw)
	if err != nil {
		return costdomain.Result[R]{}, err
	}

	start, end := CurrentMonthPeriod(now)
	records, rejected, err := job.Preprocess(rows, start, end)
	if err != nil {
		return costdomain.Result[R]{Rejected: rejected}, err
	}

	period, err := periods.GetOrCreatePeriod(ctx, start, end)
	if err != nil {
		return costdomain.Result[R]{Rejected: rejected}, err
	}

	saved, err := job.Save(ctx, period.ID, records)
	if err != nil {
		return costdomain.Result[R]{BillingPeriodID: period.ID, Rejected: rejected}, err
	}

	return costdomain.Result[R]{
		Records:         records,
		BillingPeriodID: period.ID,
		SavedCount:      saved,
		Rejected:        rejected,
	}, nil
}

type PipelineParams struct {
	fx.In

	Fetcher billingapi.Fetcher
	Service costdomain.Service
	Config  config.Config
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Pipeline runs the daily and service-cost pipelines. HTTP handlers and the
// scheduler share it so both triggers take the same path.
type Pipeline struct {
	fetcher      billingapi.Fetcher
	svc          costdomain.Service
	pre          *Preprocessor
	clock        clock.Clock
	lookbackDays int
	log          *zap.Logger
	metrics      *metrics.Metrics
}

func NewPipeline(p PipelineParams) costdomain.Pipeline {
	return newPipeline(p)
}

func newPipeline(p PipelineParams) *Pipeline {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	lookback := p.Config.Ingest.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	log := p.Log.Named("cost.pipeline")
	return &Pipeline{
		fetcher:      p.Fetcher,
		svc:          p.Service,
		pre:          NewPreprocessor(p.Config.Ingest.DefaultCurrency, log),
		clock:        c,
		lookbackDays: lookback,
		log:          log,
		metrics:      p.Metrics,
	}
}

func (p *Pipeline) FetchDailyCosts(ctx context.Context) (costdomain.Result[costdomain.DailyCostRecord], error) {
	now := p.clock.Now()
	from, to := lookbackWindow(now, p.lookbackDays)
	return run(ctx, p, now, Job[costdomain.DailyCostRecord]{
		Name: PipelineDailyCosts,
		Fetch: func(ctx context.Context) (*billingapi.QueryResult, error) {
			return p.fetcher.DailyCosts(ctx, from, to)
		},
		Preprocess: func(rows []costdomain.Row, start, end time.Time) ([]costdomain.DailyCostRecord, int, error) {
			return p.pre.DailyCosts(rows, start, end, now)
		},
		Save: p.svc.SaveDailyCosts,
	})
}

func (p *Pipeline) FetchServiceCosts(ctx context.Context) (costdomain.Result[costdomain.ServiceCostRecord], error) {
	now := p.clock.Now()
	return run(ctx, p, now, Job[costdomain.ServiceCostRecord]{
		Name:  PipelineServiceCosts,
		Fetch: p.fetcher.ServiceCostsMonthToDate,
		Preprocess: func(rows []costdomain.Row, start, end time.Time) ([]costdomain.ServiceCostRecord, int, error) {
			return p.pre.ServiceCosts(rows, start, end, now)
		},
		Save: p.svc.SaveServiceCosts,
	})
}

// FetchServiceCostsRaw returns the normalized month-to-date rows without
// validating or saving them.
func (p *Pipeline) FetchServiceCostsRaw(ctx context.Context) ([]costdomain.Row, error) {
	raw, err := p.fetcher.ServiceCostsMonthToDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", PipelineServiceCosts, err)
	}
	return Normalize(raw)
}

func run[R any](ctx context.Context, p *Pipeline, now time.Time, job Job[R]) (costdomain.Result[R], error) {
	ctx, span := tracing.Tracer("cost").Start(ctx, "cost.pipeline."+job.Name)
	defer span.End()

	started := time.Now()
	result, err := FetchProcessSave(ctx, p.svc, now, job)
	elapsed := time.Since(started)
	p.metrics.RecordIngest(ctx, job.Name, result.SavedCount, result.Rejected, elapsed, err)

	span.SetAttributes(
		attribute.String("pipeline", job.Name),
		attribute.Int("saved_count", result.SavedCount),
		attribute.Int("rejected_count", result.Rejected),
	)

	log := logger.WithContext(ctx, p.log).With(
		zap.String("pipeline", job.Name),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, metrics.ClassifySchedulerJobReason(err))
		log.Error("cost pipeline failed",
			zap.String("reason", metrics.ClassifySchedulerJobReason(err)),
			zap.Error(err),
		)
		return result, err
	}

	log.Info("cost pipeline completed",
		zap.String("billing_period_id", result.BillingPeriodID.String()),
		zap.Int("records", len(result.Records)),
		zap.Int("saved_count", result.SavedCount),
		zap.Int("rejected_count", result.Rejected),
	)
	return result, nil
}

var _ costdomain.Pipeline = (*Pipeline)(nil)
