package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-earn/internal/config"
	"github.com/noah-isme/backend-earn/internal/obs"
)

// Dependencies bundles the process-wide clients both binaries share.
type Dependencies struct {
	Cfg      *config.Config
	Pool     *pgxpool.Pool
	RDB      *redis.Client
	AsynqOpt asynq.RedisClientOpt
}

// New connects the shared clients and verifies both stores are reachable.
func New(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.ConnConfig.Tracer = obs.PGXTracer{}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpt)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		pool.Close()
		return nil, fmt.Errorf("instrument redis: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Dependencies{
		Cfg:  cfg,
		Pool: pool,
		RDB:  rdb,
		AsynqOpt: asynq.RedisClientOpt{
			Addr:     redisOpt.Addr,
			Username: redisOpt.Username,
			Password: redisOpt.Password,
			DB:       redisOpt.DB,
		},
	}, nil
}

// Close releases the shared clients.
func (d *Dependencies) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.RDB != nil {
		_ = d.RDB.Close()
	}
}

// GlobalRateLimiter builds the per-IP middleware applied to the whole API
// surface. The formatted rate follows "count-period" (e.g. "300-M").
func GlobalRateLimiter(rdb *redis.Client, formatted string) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	store, err := sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: "ratelimit:global",
	})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	mw := mhttp.NewMiddleware(limiter.New(store, rate))
	return mw.Handler, nil
}
