package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service reconciles validated records into storage and serves reads.
type Service interface {
	// GetOrCreatePeriod returns the period for the exact window and makes it
	// the only current period.
	GetOrCreatePeriod(ctx context.Context, start, end time.Time) (*BillingPeriod, error)
	SaveServiceCosts(ctx context.Context, periodID snowflake.ID, records []ServiceCostRecord) (int, error)
	SaveDailyCosts(ctx context.Context, periodID snowflake.ID, records []DailyCostRecord) (int, error)

	ListPeriods(ctx context.Context, req ListPeriodsRequest) (ListPeriodsResponse, error)
	GetCurrentPeriod(ctx context.Context) (*BillingPeriod, error)
	ListServiceCosts(ctx context.Context, periodID string) ([]ServiceCostView, error)
	ListDailyCosts(ctx context.Context, periodID string) ([]DailyCost, error)
}

// Pipeline runs fetch, normalize, validate and save as one unit of work.
type Pipeline interface {
	FetchDailyCosts(ctx context.Context) (Result[DailyCostRecord], error)
	FetchServiceCosts(ctx context.Context) (Result[ServiceCostRecord], error)
	FetchServiceCostsRaw(ctx context.Context) ([]Row, error)
}

type ListPeriodsRequest struct {
	PageToken string
	PageSize  int
}

type ListPeriodsResponse struct {
	Periods       []BillingPeriod
	NextPageToken string
	HasMore       bool
}

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
