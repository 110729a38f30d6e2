package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired indicates another holder owns the lock.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker is a single-instance redis lock used to keep periodic jobs from
// running on multiple workers at once.
type Locker struct {
	RDB *redis.Client
	TTL time.Duration
}

// Lock is a held lock. Release it when the guarded work finishes.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire attempts to take the named lock.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	key := "lock:" + name
	token := uuid.NewString()

	ok, err := l.RDB.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{rdb: l.RDB, key: key, token: token}, nil
}

// AcquireWithRetry retries a contended acquire, sleeping backoff between
// attempts, before reporting ErrNotAcquired.
func (l *Locker) AcquireWithRetry(ctx context.Context, name string, attempts int, backoff time.Duration) (*Lock, error) {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; ; i++ {
		held, err := l.Acquire(ctx, name)
		if err == nil || !errors.Is(err, ErrNotAcquired) || i == attempts-1 {
			return held, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Release frees the lock if it is still held by this owner.
func (k *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, k.rdb, []string{k.key}, k.token).Err()
}
