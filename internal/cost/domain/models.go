package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// BillingPeriod is a calendar window costs are aggregated against. At most
// one row carries IsCurrent.
type BillingPeriod struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	StartDate time.Time    `gorm:"not null;uniqueIndex:uq_billing_period_dates"`
	EndDate   time.Time    `gorm:"not null;uniqueIndex:uq_billing_period_dates"`
	IsCurrent bool         `gorm:"not null;default:false"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (BillingPeriod) TableName() string { return "billing_period" }

// AzureService is an Azure billing "ServiceName" dimension value.
type AzureService struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:varchar(255);not null;uniqueIndex"`
	Category  *string      `gorm:"type:varchar(100)"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (AzureService) TableName() string { return "azure_service" }

// ServiceCost is the month-to-date cost of one service in one period.
type ServiceCost struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	ServiceID       snowflake.ID    `gorm:"not null;uniqueIndex:uq_service_cost_service_period"`
	BillingPeriodID snowflake.ID    `gorm:"not null;uniqueIndex:uq_service_cost_service_period"`
	CurrencyCode    string          `gorm:"type:char(3);not null"`
	CostAmount      decimal.Decimal `gorm:"type:numeric(15,2);not null"`
	FetchedAt       time.Time       `gorm:"not null"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (ServiceCost) TableName() string { return "service_cost" }

// DailyCost is the cost of one usage day in one period.
type DailyCost struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	BillingPeriodID snowflake.ID    `gorm:"not null;uniqueIndex:uq_daily_cost_date_period"`
	UsageDate       time.Time       `gorm:"type:date;not null;uniqueIndex:uq_daily_cost_date_period"`
	CurrencyCode    string          `gorm:"type:char(3);not null"`
	CostAmount      decimal.Decimal `gorm:"type:numeric(15,2);not null"`
	FetchedAt       time.Time       `gorm:"not null"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (DailyCost) TableName() string { return "daily_cost" }

// ServiceCostView joins a service cost with its service name for reads.
type ServiceCostView struct {
	ID              snowflake.ID
	ServiceID       snowflake.ID
	ServiceName     string
	ServiceCategory *string
	BillingPeriodID snowflake.ID
	CurrencyCode    string
	CostAmount      decimal.Decimal
	FetchedAt       time.Time
	UpdatedAt       time.Time
}
