package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/azurecost/internal/config"
)

func TestNewFetchLimiterDisabled(t *testing.T) {
	l := NewFetchLimiter(FetchLimiterParams{Config: config.Config{}})
	if l != nil {
		t.Fatalf("expected nil limiter when disabled")
	}

	res, err := l.Allow(context.Background(), "/cost/month-to-date")
	if err != nil || !res.Allowed {
		t.Fatalf("nil limiter must allow, got %+v %v", res, err)
	}
}

func TestNewFetchLimiterWithoutClient(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}
	if l := NewFetchLimiter(FetchLimiterParams{Config: cfg}); l != nil {
		t.Fatalf("expected nil limiter without redis client")
	}
}

func TestFetchKey(t *testing.T) {
	if got := fetchKey(" sub-1 "); got != "azurecost:ratelimit:fetch:sub-1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := fetchKey(""); got != "azurecost:ratelimit:fetch:default" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewResultRetryAfter(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)

	spec := BucketSpec{Rate: 0.5, Burst: 5}

	denied := newResult(false, spec, 0.5, at)
	if denied.RetryAfter != time.Second {
		t.Fatalf("expected 1s retry, got %s", denied.RetryAfter)
	}
	if !denied.ResetTime.Equal(at.Add(time.Second)) {
		t.Fatalf("unexpected reset time %s", denied.ResetTime)
	}

	allowed := newResult(true, spec, 3.75, at)
	if allowed.RetryAfter != 0 || allowed.Remaining != 3 || allowed.Limit != 5 {
		t.Fatalf("unexpected allowed result %+v", allowed)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		in   *RateLimitResult
		want int
	}{
		{nil, 1},
		{&RateLimitResult{}, 1},
		{&RateLimitResult{RetryAfter: 1500 * time.Millisecond}, 2},
		{&RateLimitResult{RetryAfter: 3 * time.Second}, 3},
	}
	for _, tc := range cases {
		if got := RetryAfterSeconds(tc.in); got != tc.want {
			t.Fatalf("RetryAfterSeconds(%+v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestConvertHelpers(t *testing.T) {
	if toFloat("2.5") != 2.5 || toFloat("x") != 0 || toFloat(int64(3)) != 3 {
		t.Fatalf("toFloat mismatch")
	}
	if toInt(float64(7)) != 7 || toInt("7") != 0 {
		t.Fatalf("toInt mismatch")
	}
}

func TestBucketSpecTTL(t *testing.T) {
	if got := (BucketSpec{Rate: 0.5, Burst: 5}).ttl(); got != 20*time.Second {
		t.Fatalf("unexpected ttl %s", got)
	}
	if got := (BucketSpec{Rate: 100, Burst: 1}).ttl(); got != time.Second {
		t.Fatalf("unexpected ttl %s", got)
	}
	if got := (BucketSpec{}).ttl(); got != time.Second {
		t.Fatalf("unexpected ttl for invalid spec %s", got)
	}
}

func TestTakeRejectsInvalidBucket(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	bucket := NewTokenBucket(client)

	cases := []struct {
		key  string
		spec BucketSpec
	}{
		{"", BucketSpec{Rate: 1, Burst: 1}},
		{"k", BucketSpec{Rate: 0, Burst: 1}},
		{"k", BucketSpec{Rate: 1, Burst: 0}},
	}
	for _, tc := range cases {
		if _, err := bucket.Take(context.Background(), tc.key, tc.spec); !errors.Is(err, ErrInvalidBucket) {
			t.Fatalf("Take(%q, %+v) err = %v, want ErrInvalidBucket", tc.key, tc.spec, err)
		}
	}
}

func TestNilClientGuards(t *testing.T) {
	if NewTokenBucket(nil) != nil || NewLocker(nil) != nil {
		t.Fatalf("expected nil helpers without client")
	}

	var bucket *TokenBucket
	if _, err := bucket.Take(context.Background(), "k", BucketSpec{Rate: 1, Burst: 1}); !errors.Is(err, ErrLimiterNotConfigured) {
		t.Fatalf("expected ErrLimiterNotConfigured, got %v", err)
	}

	var locker *Locker
	if _, err := locker.TryLock(context.Background(), "k", time.Second); !errors.Is(err, ErrLockNotConfigured) {
		t.Fatalf("expected ErrLockNotConfigured, got %v", err)
	}

	var lease *Lease
	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("release on nil lease must be a no-op: %v", err)
	}
}
