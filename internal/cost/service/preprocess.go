package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"go.uber.org/zap"
)

// Billing API column names.
const (
	ColumnCost            = "Cost"
	ColumnCurrency        = "Currency"
	ColumnServiceName     = "ServiceName"
	ColumnServiceCategory = "ServiceCategory"
	ColumnUsageDate       = "UsageDate"
)

const usageDateFormat = "20060102"

var (
	errMissingCost      = errors.New("missing_cost")
	errInvalidCost      = errors.New("invalid_cost")
	errNegativeCost     = errors.New("negative_cost")
	errInvalidCurrency  = errors.New("invalid_currency")
	errInvalidUsageDate = errors.New("invalid_usage_date")
)

// Preprocessor validates normalized rows into cost records. Rows that fail
// validation are logged and dropped.
type Preprocessor struct {
	defaultCurrency string
	log             *zap.Logger
}

func NewPreprocessor(defaultCurrency string, log *zap.Logger) *Preprocessor {
	currency := strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if currency == "" {
		currency = "INR"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Preprocessor{defaultCurrency: currency, log: log}
}

// ServiceCosts returns the valid records in input order and the number of
// rejected rows. A non-empty batch with no valid rows fails with
// ErrValidation.
func (p *Preprocessor) ServiceCosts(rows []costdomain.Row, start, end, fetchedAt time.Time) ([]costdomain.ServiceCostRecord, int, error) {
	records := make([]costdomain.ServiceCostRecord, 0, len(rows))
	rejected := 0
	for i, row := range rows {
		rec, err := p.serviceCost(row, start, end, fetchedAt)
		if err != nil {
			rejected++
			p.reject("service_cost", i, err)
			continue
		}
		records = append(records, rec)
	}
	if err := p.checkBatch("service_cost", len(rows), rejected); err != nil {
		return nil, rejected, err
	}
	return records, rejected, nil
}

// DailyCosts is ServiceCosts for the daily-granularity query; each row also
// needs a YYYYMMDD UsageDate.
func (p *Preprocessor) DailyCosts(rows []costdomain.Row, start, end, fetchedAt time.Time) ([]costdomain.DailyCostRecord, int, error) {
	records := make([]costdomain.DailyCostRecord, 0, len(rows))
	rejected := 0
	for i, row := range rows {
		base, err := p.serviceCost(row, start, end, fetchedAt)
		if err == nil {
			var usageDate time.Time
			usageDate, err = ParseUsageDate(row[ColumnUsageDate])
			if err == nil {
				records = append(records, costdomain.DailyCostRecord{ServiceCostRecord: base, UsageDate: usageDate})
				continue
			}
		}
		rejected++
		p.reject("daily_cost", i, err)
	}
	if err := p.checkBatch("daily_cost", len(rows), rejected); err != nil {
		return nil, rejected, err
	}
	return records, rejected, nil
}

func (p *Preprocessor) serviceCost(row costdomain.Row, start, end, fetchedAt time.Time) (costdomain.ServiceCostRecord, error) {
	cost, err := ParseCost(row[ColumnCost])
	if err != nil {
		return costdomain.ServiceCostRecord{}, err
	}
	currency, err := NormalizeCurrency(row[ColumnCurrency], p.defaultCurrency)
	if err != nil {
		return costdomain.ServiceCostRecord{}, err
	}

	return costdomain.ServiceCostRecord{
		ServiceName:        NormalizeServiceName(row[ColumnServiceName]),
		ServiceCategory:    optionalString(row[ColumnServiceCategory]),
		Cost:               cost,
		Currency:           currency,
		BillingPeriodStart: start,
		BillingPeriodEnd:   end,
		FetchedAt:          fetchedAt.UTC(),
	}, nil
}

func (p *Preprocessor) reject(kind string, index int, err error) {
	p.log.Warn("rejected cost record",
		zap.String("record_type", kind),
		zap.Int("row", index),
		zap.Error(err),
	)
}

func (p *Preprocessor) checkBatch(kind string, total, rejected int) error {
	if total > 0 && rejected == total {
		return fmt.Errorf("%w: no usable data in %s batch of %d rows", costdomain.ErrValidation, kind, total)
	}
	if rejected > 0 {
		p.log.Info("partial cost batch",
			zap.String("record_type", kind),
			zap.Int("rows", total),
			zap.Int("rejected", rejected),
		)
	}
	return nil
}

// ParseCost coerces a billing API value into a non-negative amount rounded
// to two places, half away from zero. Floats are read through their
// shortest decimal form so 12.345 rounds to 12.35.
func ParseCost(v any) (decimal.Decimal, error) {
	var (
		amount decimal.Decimal
		err    error
	)
	switch val := v.(type) {
	case nil:
		return decimal.Decimal{}, errMissingCost
	case decimal.Decimal:
		amount = val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Decimal{}, errInvalidCost
		}
		amount, err = decimal.NewFromString(strconv.FormatFloat(val, 'f', -1, 64))
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return decimal.Decimal{}, errInvalidCost
		}
		amount, err = decimal.NewFromString(strconv.FormatFloat(float64(val), 'f', -1, 32))
	case int:
		amount = decimal.NewFromInt(int64(val))
	case int32:
		amount = decimal.NewFromInt32(val)
	case int64:
		amount = decimal.NewFromInt(val)
	case json.Number:
		amount, err = decimal.NewFromString(val.String())
	case string:
		amount, err = decimal.NewFromString(strings.TrimSpace(val))
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unsupported type %T", errInvalidCost, v)
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", errInvalidCost, err)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", errNegativeCost, amount.String())
	}
	return amount.Round(2), nil
}

// NormalizeCurrency uppercases a three-letter code, falling back when the
// value is absent.
func NormalizeCurrency(v any, fallback string) (string, error) {
	code := ""
	if v != nil {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: unsupported type %T", errInvalidCurrency, v)
		}
		code = strings.TrimSpace(s)
	}
	if code == "" {
		code = fallback
	}
	code = strings.ToUpper(code)
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", errInvalidCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", errInvalidCurrency, code)
		}
	}
	return code, nil
}

func NormalizeServiceName(v any) string {
	if v == nil {
		return costdomain.UnknownServiceName
	}
	name := strings.TrimSpace(fmt.Sprint(v))
	if name == "" {
		return costdomain.UnknownServiceName
	}
	return name
}

// ParseUsageDate reads an 8-digit YYYYMMDD value as a UTC calendar date.
func ParseUsageDate(v any) (time.Time, error) {
	var raw string
	switch val := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: missing", errInvalidUsageDate)
	case int:
		raw = strconv.Itoa(val)
	case int64:
		raw = strconv.FormatInt(val, 10)
	case float64:
		if val != math.Trunc(val) {
			return time.Time{}, fmt.Errorf("%w: %v", errInvalidUsageDate, val)
		}
		raw = strconv.FormatFloat(val, 'f', 0, 64)
	case json.Number:
		raw = val.String()
	case string:
		raw = strings.TrimSpace(val)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", errInvalidUsageDate, v)
	}

	if len(raw) != len(usageDateFormat) {
		return time.Time{}, fmt.Errorf("%w: %q", errInvalidUsageDate, raw)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("%w: %q", errInvalidUsageDate, raw)
		}
	}
	date, err := time.ParseInLocation(usageDateFormat, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errInvalidUsageDate, raw)
	}
	return date, nil
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
