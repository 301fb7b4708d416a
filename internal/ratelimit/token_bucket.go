package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket refills continuously at rate tokens per second up to burst.
// Remaining tokens come back as a string because Redis truncates Lua
// numbers to integers, and the retry hint needs the fraction.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = (t[1] * 1000) + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), now}
`

var (
	ErrLimiterNotConfigured = errors.New("rate_limiter_not_configured")
	ErrInvalidBucket        = errors.New("invalid_token_bucket")
	errBadScriptReply       = errors.New("invalid rate limit script reply")
)

// BucketSpec sizes a token bucket: Rate tokens per second, at most Burst.
type BucketSpec struct {
	Rate  float64
	Burst int
}

func (s BucketSpec) valid() bool {
	return s.Rate > 0 && s.Burst > 0
}

// ttl keeps an idle bucket around for twice its full refill time.
func (s BucketSpec) ttl() time.Duration {
	if !s.valid() {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(float64(s.Burst)/s.Rate*2))
	return time.Duration(seconds) * time.Second
}

// TokenBucket is a Redis-backed bucket shared by every replica.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Take consumes one token from the bucket at key.
func (t *TokenBucket) Take(ctx context.Context, key string, spec BucketSpec) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ErrLimiterNotConfigured
	}
	if key == "" || !spec.valid() {
		return nil, ErrInvalidBucket
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		spec.Rate,
		spec.Burst,
		spec.ttl().Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 3 {
		return nil, errBadScriptReply
	}

	allowed := toInt(reply[0]) == 1
	remaining := toFloat(reply[1])
	at := time.UnixMilli(toInt(reply[2]))
	return newResult(allowed, spec, remaining, at), nil
}

// newResult derives the retry hint from the token deficit: a denied caller
// needs one whole token, refilled at spec.Rate per second.
func newResult(allowed bool, spec BucketSpec, remaining float64, at time.Time) *RateLimitResult {
	var retryAfter time.Duration
	if !allowed && spec.Rate > 0 {
		if deficit := 1 - remaining; deficit > 0 {
			retryAfter = time.Duration(deficit / spec.Rate * float64(time.Second))
		}
	}
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      spec.Burst,
		Remaining:  int(remaining),
		ResetTime:  at.Add(retryAfter),
		RetryAfter: retryAfter,
	}
}

func toInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
