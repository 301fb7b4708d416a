// Package billingapitest provides an in-memory billing API for tests.
package billingapitest

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/azurecost/internal/billingapi"
)

// Fetcher returns canned results and counts calls.
type Fetcher struct {
	mu sync.Mutex

	Daily      *billingapi.QueryResult
	Services   *billingapi.QueryResult
	DailyErr   error
	ServiceErr error

	DailyCalls   int
	ServiceCalls int
	LastFrom     time.Time
	LastTo       time.Time

	// Block, when set, is waited on before answering.
	Block chan struct{}
}

func (f *Fetcher) DailyCosts(ctx context.Context, from, to time.Time) (*billingapi.QueryResult, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DailyCalls++
	f.LastFrom, f.LastTo = from, to
	return f.Daily, f.DailyErr
}

func (f *Fetcher) ServiceCostsMonthToDate(ctx context.Context) (*billingapi.QueryResult, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ServiceCalls++
	return f.Services, f.ServiceErr
}

func (f *Fetcher) wait(ctx context.Context) error {
	if f.Block == nil {
		return nil
	}
	select {
	case <-f.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServiceRows builds a ServiceName/Cost/Currency result.
func ServiceRows(rows ...[]any) *billingapi.QueryResult {
	return &billingapi.QueryResult{
		Columns: []billingapi.Column{
			{Name: "Cost", Type: "Number"},
			{Name: "ServiceName", Type: "String"},
			{Name: "Currency", Type: "String"},
		},
		Rows: rows,
	}
}

// DailyRows builds a Cost/UsageDate/Currency result.
func DailyRows(rows ...[]any) *billingapi.QueryResult {
	return &billingapi.QueryResult{
		Columns: []billingapi.Column{
			{Name: "Cost", Type: "Number"},
			{Name: "UsageDate", Type: "Number"},
			{Name: "Currency", Type: "String"},
		},
		Rows: rows,
	}
}

var _ billingapi.Fetcher = (*Fetcher)(nil)
