package billingapi

import (
	"context"
	"time"
)

// PooledFetcher dispatches every call of the wrapped Fetcher onto a Pool.
type PooledFetcher struct {
	next    Fetcher
	pool    *Pool
	timeout time.Duration
}

func NewPooledFetcher(next Fetcher, pool *Pool, timeout time.Duration) *PooledFetcher {
	return &PooledFetcher{next: next, pool: pool, timeout: timeout}
}

func (f *PooledFetcher) DailyCosts(ctx context.Context, from, to time.Time) (*QueryResult, error) {
	return f.run(ctx, func(ctx context.Context) (*QueryResult, error) {
		return f.next.DailyCosts(ctx, from, to)
	})
}

func (f *PooledFetcher) ServiceCostsMonthToDate(ctx context.Context) (*QueryResult, error) {
	return f.run(ctx, f.next.ServiceCostsMonthToDate)
}

func (f *PooledFetcher) run(ctx context.Context, call func(context.Context) (*QueryResult, error)) (*QueryResult, error) {
	var result *QueryResult
	err := f.pool.Do(ctx, func(ctx context.Context) error {
		if f.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}
		var err error
		result, err = call(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ Fetcher = (*PooledFetcher)(nil)
