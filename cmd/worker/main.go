package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-earn/internal/analytics"
	"github.com/noah-isme/backend-earn/internal/app"
	"github.com/noah-isme/backend-earn/internal/config"
	"github.com/noah-isme/backend-earn/internal/lock"
	"github.com/noah-isme/backend-earn/internal/notify"
	"github.com/noah-isme/backend-earn/internal/obs"
)

func main() {
	logger := obs.NewLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close()

	shutdownTracer, err := obs.SetupTracing(ctx, "backend-earn-worker", cfg.AppEnv, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}
	obs.MustRegisterDomainMetrics("earn", nil)

	notifyStore := &notify.Store{Pool: deps.Pool}
	deliver := &notify.DeliveryHandler{
		Store: notifyStore,
		HTTP: &http.Client{
			Timeout:   cfg.WebhookRequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		MaxAge: cfg.WebhookReplayTTL,
		Log:    logger,
	}

	srv := asynq.NewServer(deps.AsynqOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"webhooks": 5,
			"default":  1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(notify.TaskWebhookDeliver, deliver)

	go warmAnalytics(ctx, cfg, deps, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(mux)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("asynq server")
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	srv.Shutdown()
}

// warmAnalytics periodically refreshes the cached earn summary so console
// reads mostly hit cache. The redis lock keeps a single worker refreshing
// when several run.
func warmAnalytics(ctx context.Context, cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger) {
	svc := &analytics.Service{
		Pool:     deps.Pool,
		RDB:      deps.RDB,
		CacheTTL: cfg.AnalyticsCacheTTL,
		Log:      logger,
	}
	locker := &lock.Locker{RDB: deps.RDB, TTL: cfg.LockTTL}

	ticker := time.NewTicker(cfg.CacheWarmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := locker.AcquireWithRetry(ctx, "analytics-warm", 3, cfg.LockRetryBackoff)
		if err != nil {
			if !errors.Is(err, lock.ErrNotAcquired) {
				logger.Warn().Err(err).Msg("acquire warm lock")
			}
			continue
		}
		if err := svc.Warm(ctx, 24*time.Hour); err != nil {
			logger.Warn().Err(err).Msg("warm earn summary")
		}
		if err := held.Release(ctx); err != nil {
			logger.Warn().Err(err).Msg("release warm lock")
		}
	}
}
