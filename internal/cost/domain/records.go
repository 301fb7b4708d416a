package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	UnknownServiceName = "Unknown"
	UsageDateLayout    = "2006-01-02"
)

// Row is one normalized billing API row keyed by column name.
type Row map[string]any

// ServiceCostRecord is a validated month-to-date service cost ready to persist.
type ServiceCostRecord struct {
	ServiceName        string
	ServiceCategory    *string
	Cost               decimal.Decimal
	Currency           string
	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time
	FetchedAt          time.Time
}

// DailyCostRecord is a validated per-day cost ready to persist.
type DailyCostRecord struct {
	ServiceCostRecord
	UsageDate time.Time
}

type serviceCostJSON struct {
	ServiceName        string      `json:"service_name"`
	ServiceCategory    *string     `json:"service_category"`
	Cost               json.Number `json:"cost"`
	Currency           string      `json:"currency"`
	BillingPeriodStart time.Time   `json:"billing_period_start"`
	BillingPeriodEnd   time.Time   `json:"billing_period_end"`
	FetchedAt          time.Time   `json:"fetched_at"`
}

func (r ServiceCostRecord) toJSON() serviceCostJSON {
	return serviceCostJSON{
		ServiceName:        r.ServiceName,
		ServiceCategory:    r.ServiceCategory,
		Cost:               json.Number(r.Cost.StringFixed(2)),
		Currency:           r.Currency,
		BillingPeriodStart: r.BillingPeriodStart,
		BillingPeriodEnd:   r.BillingPeriodEnd,
		FetchedAt:          r.FetchedAt,
	}
}

// MarshalJSON renders cost as a two-decimal JSON number.
func (r ServiceCostRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.toJSON())
}

func (r DailyCostRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		serviceCostJSON
		UsageDate string `json:"usage_date"`
	}{
		serviceCostJSON: r.ServiceCostRecord.toJSON(),
		UsageDate:       r.UsageDate.Format(UsageDateLayout),
	})
}

// Result is what one fetch-process-save run produced. Rejected counts the
// rows dropped during validation.
type Result[R any] struct {
	Records         []R
	BillingPeriodID snowflake.ID
	SavedCount      int
	Rejected        int
}
