package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLocker(t *testing.T) *Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Locker{RDB: rdb, TTL: 30 * time.Second}
}

func TestAcquireIsExclusive(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "warm")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := locker.Acquire(ctx, "warm"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second acquire err = %v, want ErrNotAcquired", err)
	}

	if err := held.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := locker.Acquire(ctx, "warm"); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquireWithRetryWaitsForHolder(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "warm")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := locker.AcquireWithRetry(ctx, "warm", 2, 5*time.Millisecond); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("contended retry err = %v, want ErrNotAcquired", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = held.Release(ctx)
	}()
	if _, err := locker.AcquireWithRetry(ctx, "warm", 10, 5*time.Millisecond); err != nil {
		t.Fatalf("retry after release: %v", err)
	}
}

func TestDifferentNamesDoNotContend(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	if _, err := locker.Acquire(ctx, "a"); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	if _, err := locker.Acquire(ctx, "b"); err != nil {
		t.Fatalf("acquire b: %v", err)
	}
}

func TestReleaseIgnoresStolenLock(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "warm")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate expiry plus takeover by another holder.
	if err := locker.RDB.Set(ctx, "lock:warm", "someone-else", time.Minute).Err(); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := held.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	val, err := locker.RDB.Get(ctx, "lock:warm").Result()
	if err != nil || val != "someone-else" {
		t.Fatalf("lock value = %q err=%v, want someone-else", val, err)
	}
}
