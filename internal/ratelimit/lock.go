package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes the key only while it still holds the caller's token, so an
// expired lease cannot release a lock another replica has since taken.
const releaseLeaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrInvalidLease      = errors.New("invalid_lock_lease")
)

// Locker hands out Redis leases so one replica at a time runs a job.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

// Lease is a held lock. It expires on its own after the TTL it was taken with.
type Lease struct {
	locker *Locker
	Key    string
	token  string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(releaseLeaseScript),
	}
}

// TryLock takes key for ttl. It returns a nil lease and no error when another
// holder has it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}
	if key == "" || ttl <= 0 {
		return nil, ErrInvalidLease
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lease{locker: l, Key: key, token: token}, nil
}

// Release gives the lease back. Releasing a nil or expired lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.locker == nil || l.token == "" {
		return nil
	}
	return l.locker.release.Run(ctx, l.locker.client, []string{l.Key}, l.token).Err()
}
