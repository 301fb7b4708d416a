package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	marchStart = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	marchEnd   = time.Date(2024, time.March, 31, 23, 59, 59, 999999000, time.UTC)
	fetchedAt  = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
)

func TestParseCostRounding(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{12.345, "12.35"},
		{12.344, "12.34"},
		{"7", "7.00"},
		{" 3.1 ", "3.10"},
		{0, "0.00"},
		{int64(42), "42.00"},
		{json.Number("1.005"), "1.01"},
		{decimal.RequireFromString("2.499"), "2.50"},
	}
	for _, tc := range cases {
		got, err := ParseCost(tc.in)
		require.NoError(t, err, "input %v", tc.in)
		assert.Equal(t, tc.want, got.StringFixed(2), "input %v", tc.in)
	}
}

func TestParseCostRejects(t *testing.T) {
	for _, in := range []any{nil, -5.00, "-0.01", "abc", true, []int{1}} {
		if _, err := ParseCost(in); err == nil {
			t.Fatalf("expected %v to be rejected", in)
		}
	}
}

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency("inr", "USD")
	require.NoError(t, err)
	assert.Equal(t, "INR", got)

	got, err = NormalizeCurrency(nil, "INR")
	require.NoError(t, err)
	assert.Equal(t, "INR", got)

	got, err = NormalizeCurrency("  ", "INR")
	require.NoError(t, err)
	assert.Equal(t, "INR", got)

	for _, bad := range []any{"usdx", "U$D", 12} {
		_, err := NormalizeCurrency(bad, "INR")
		assert.Error(t, err, "input %v", bad)
	}
}

func TestNormalizeServiceName(t *testing.T) {
	assert.Equal(t, "Virtual Machines", NormalizeServiceName("  Virtual Machines "))
	assert.Equal(t, costdomain.UnknownServiceName, NormalizeServiceName(""))
	assert.Equal(t, costdomain.UnknownServiceName, NormalizeServiceName(nil))
}

func TestParseUsageDate(t *testing.T) {
	want := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []any{20240115, int64(20240115), float64(20240115), "20240115", json.Number("20240115")} {
		got, err := ParseUsageDate(in)
		require.NoError(t, err, "input %v", in)
		assert.True(t, want.Equal(got), "input %v gave %v", in, got)
	}

	for _, in := range []any{nil, 2024011, "2024-01-15", "2024011a", 20241345, 20240115.5, "202401150"} {
		_, err := ParseUsageDate(in)
		assert.Error(t, err, "input %v", in)
	}
}

func TestServiceCostsPartialBatch(t *testing.T) {
	pre := NewPreprocessor("INR", zap.NewNop())
	rows := []costdomain.Row{
		{"ServiceName": "VM", "Cost": 10.5, "Currency": "usd"},
		{"ServiceName": "Bad", "Cost": -5.00, "Currency": "usd"},
		{"ServiceName": " ", "Cost": "2", "Currency": nil},
	}

	records, rejected, err := pre.ServiceCosts(rows, marchStart, marchEnd, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, rejected)
	require.Len(t, records, 2)

	assert.Equal(t, "VM", records[0].ServiceName)
	assert.Equal(t, "10.50", records[0].Cost.StringFixed(2))
	assert.Equal(t, "USD", records[0].Currency)
	assert.Equal(t, marchStart, records[0].BillingPeriodStart)
	assert.Equal(t, marchEnd, records[0].BillingPeriodEnd)
	assert.Equal(t, fetchedAt, records[0].FetchedAt)

	assert.Equal(t, costdomain.UnknownServiceName, records[1].ServiceName)
	assert.Equal(t, "INR", records[1].Currency)
}

func TestServiceCostsAllInvalid(t *testing.T) {
	pre := NewPreprocessor("INR", zap.NewNop())
	rows := []costdomain.Row{
		{"ServiceName": "VM", "Cost": -5.00},
		{"ServiceName": "Disk", "Cost": "n/a"},
	}

	records, rejected, err := pre.ServiceCosts(rows, marchStart, marchEnd, fetchedAt)
	assert.True(t, errors.Is(err, costdomain.ErrValidation), "got %v", err)
	assert.Empty(t, records)
	assert.Equal(t, 2, rejected)
}

func TestServiceCostsEmptyBatch(t *testing.T) {
	pre := NewPreprocessor("INR", zap.NewNop())
	records, rejected, err := pre.ServiceCosts(nil, marchStart, marchEnd, fetchedAt)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, rejected)
}

func TestDailyCostsRejectsBadDates(t *testing.T) {
	pre := NewPreprocessor("INR", zap.NewNop())
	rows := []costdomain.Row{
		{"UsageDate": 20240301, "Cost": 1.234, "Currency": "INR"},
		{"UsageDate": "2024-03-02", "Cost": 2.0, "Currency": "INR"},
	}

	records, rejected, err := pre.DailyCosts(rows, marchStart, marchEnd, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, rejected)
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), records[0].UsageDate)
	assert.Equal(t, "1.23", records[0].Cost.StringFixed(2))
	assert.Equal(t, costdomain.UnknownServiceName, records[0].ServiceName)
}

func TestDailyCostsSoleBadDateFailsBatch(t *testing.T) {
	pre := NewPreprocessor("INR", zap.NewNop())
	_, _, err := pre.DailyCosts([]costdomain.Row{{"UsageDate": "bad", "Cost": 1.0}}, marchStart, marchEnd, fetchedAt)
	assert.ErrorIs(t, err, costdomain.ErrValidation)
}

func TestCurrentMonthPeriod(t *testing.T) {
	start, end := CurrentMonthPeriod(time.Date(2024, time.March, 15, 18, 30, 0, 0, time.FixedZone("IST", 19800)))
	assert.Equal(t, marchStart, start)
	assert.Equal(t, marchEnd, end)

	start, end = CurrentMonthPeriod(time.Date(2024, time.February, 29, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.February, 29, 23, 59, 59, 999999000, time.UTC), end)
}

func TestLookbackWindow(t *testing.T) {
	from, to := lookbackWindow(time.Date(2024, time.March, 3, 12, 0, 0, 0, time.UTC), 7)
	assert.Equal(t, time.Date(2024, time.February, 25, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC), to)
}
