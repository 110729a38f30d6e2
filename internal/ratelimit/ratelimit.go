package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-earn/internal/common"
)

// Sliding is a redis-backed sliding-window limiter keyed per caller. Each
// hit is a member of a sorted set scored by its timestamp; the window is
// the set pruned to the trailing interval.
type Sliding struct {
	RDB    *redis.Client
	Prefix string
	Window time.Duration
	Max    int
	Now    func() time.Time
	Log    zerolog.Logger
}

func (l *Sliding) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records a hit for the key and reports whether it fits the window.
func (l *Sliding) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	member := fmt.Sprintf("%d", now.UnixNano())
	redisKey := l.Prefix + ":" + key
	cutoff := now.Add(-l.Window).UnixNano()

	pipe := l.RDB.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit pipeline: %w", err)
	}
	return count.Val() <= int64(l.Max), nil
}

// Middleware enforces the limit per request, keying by keyFn. Limiter
// backend failures let the request through; availability beats precision
// here.
func (l *Sliding) Middleware(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				l.Log.Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
