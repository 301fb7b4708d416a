package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/azurecost/internal/config"
	"github.com/smallbiznis/azurecost/internal/observability/metrics"
	"go.uber.org/fx"
)

const fetchKeyPrefix = "azurecost:ratelimit:fetch"

var ErrRateLimited = errors.New("rate_limited")

type FetchLimiterParams struct {
	fx.In

	Config  config.Config
	Client  *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// FetchLimiter guards the endpoints that call Cost Management. All callers
// share one bucket per subscription since the upstream quota is per scope.
type FetchLimiter struct {
	bucket  *TokenBucket
	scope   string
	spec    BucketSpec
	metrics *metrics.Metrics
}

func NewFetchLimiter(p FetchLimiterParams) *FetchLimiter {
	if !p.Config.RateLimit.Enabled || p.Client == nil {
		return nil
	}
	rate := p.Config.RateLimit.FetchRate
	if rate <= 0 {
		rate = 0.5
	}
	burst := p.Config.RateLimit.FetchBurst
	if burst <= 0 {
		burst = 5
	}
	return &FetchLimiter{
		bucket:  NewTokenBucket(p.Client),
		scope:   p.Config.Azure.SubscriptionID,
		spec:    BucketSpec{Rate: rate, Burst: burst},
		metrics: p.Metrics,
	}
}

// Allow consumes one token for endpoint. A nil limiter always allows. Redis
// failures fail open so an outage does not block manual fetches.
func (l *FetchLimiter) Allow(ctx context.Context, endpoint string) (*RateLimitResult, error) {
	if l == nil {
		return &RateLimitResult{Allowed: true}, nil
	}

	res, err := l.bucket.Take(ctx, fetchKey(l.scope), l.spec)
	if err != nil {
		l.metrics.RecordRateLimitDenied(ctx, endpoint, "redis_error")
		return &RateLimitResult{Allowed: true, Limit: l.spec.Burst}, nil
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, endpoint, "limit_exceeded")
		return res, ErrRateLimited
	}
	l.metrics.RecordRateLimitAllowed(ctx, endpoint)
	return res, nil
}

// RetryAfterSeconds rounds the retry hint up to whole seconds for the
// Retry-After header.
func RetryAfterSeconds(res *RateLimitResult) int {
	if res == nil || res.RetryAfter <= 0 {
		return 1
	}
	secs := int((res.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func fetchKey(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	return fetchKeyPrefix + ":" + scope
}
