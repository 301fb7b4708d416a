package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the raw persistence surface. Every method runs against the
// handle it is given so callers decide the transaction scope. Lookups return
// nil, nil when nothing matches.
type Repository interface {
	FindPeriodByWindow(ctx context.Context, db *gorm.DB, start, end time.Time) (*BillingPeriod, error)
	FindPeriodByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingPeriod, error)
	FindCurrentPeriod(ctx context.Context, db *gorm.DB) (*BillingPeriod, error)
	LockCurrentPeriods(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
	ClearCurrentPeriods(ctx context.Context, db *gorm.DB) error
	MarkPeriodCurrent(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	InsertPeriod(ctx context.Context, db *gorm.DB, period *BillingPeriod) error
	ListPeriods(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]BillingPeriod, error)
	CountCurrentPeriods(ctx context.Context, db *gorm.DB) (int64, error)

	FindServiceByName(ctx context.Context, db *gorm.DB, name string) (*AzureService, error)
	InsertService(ctx context.Context, db *gorm.DB, service *AzureService) error

	FindServiceCost(ctx context.Context, db *gorm.DB, serviceID, periodID snowflake.ID) (*ServiceCost, error)
	InsertServiceCost(ctx context.Context, db *gorm.DB, cost *ServiceCost) error
	UpdateServiceCost(ctx context.Context, db *gorm.DB, cost *ServiceCost) error
	ListServiceCosts(ctx context.Context, db *gorm.DB, periodID snowflake.ID) ([]ServiceCostView, error)

	FindDailyCost(ctx context.Context, db *gorm.DB, usageDate time.Time, periodID snowflake.ID) (*DailyCost, error)
	InsertDailyCost(ctx context.Context, db *gorm.DB, cost *DailyCost) error
	UpdateDailyCost(ctx context.Context, db *gorm.DB, cost *DailyCost) error
	ListDailyCosts(ctx context.Context, db *gorm.DB, periodID snowflake.ID) ([]DailyCost, error)
}
