package billingapi

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUpstream      = errors.New("upstream_error")
	ErrPoolClosed    = errors.New("billing_api_pool_closed")
	ErrNotConfigured = errors.New("billing_api_not_configured")
)

// Column mirrors one entry of the Cost Management result "columns" array.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// QueryResult is the tabular payload returned by a cost query. Each row is
// positionally aligned to Columns.
type QueryResult struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Fetcher runs the two cost queries the ingestion pipeline needs.
type Fetcher interface {
	// DailyCosts returns actual cost per day between from and to.
	DailyCosts(ctx context.Context, from, to time.Time) (*QueryResult, error)
	// ServiceCostsMonthToDate returns month-to-date totals grouped by ServiceName.
	ServiceCostsMonthToDate(ctx context.Context) (*QueryResult, error)
}

// UpstreamError describes a failed call to the billing API. It always
// matches ErrUpstream with errors.Is.
type UpstreamError struct {
	Op         string
	StatusCode int
	Code       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Code != "":
		return fmt.Sprintf("%s: billing api returned %d (%s): %v", e.Op, e.StatusCode, e.Code, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: billing api returned %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: billing api call failed: %v", e.Op, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}
