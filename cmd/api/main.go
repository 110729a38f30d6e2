package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-earn/internal/analytics"
	"github.com/noah-isme/backend-earn/internal/app"
	"github.com/noah-isme/backend-earn/internal/auth"
	"github.com/noah-isme/backend-earn/internal/common"
	"github.com/noah-isme/backend-earn/internal/config"
	"github.com/noah-isme/backend-earn/internal/events"
	"github.com/noah-isme/backend-earn/internal/health"
	"github.com/noah-isme/backend-earn/internal/merchant"
	"github.com/noah-isme/backend-earn/internal/notify"
	"github.com/noah-isme/backend-earn/internal/obs"
	"github.com/noah-isme/backend-earn/internal/ratelimit"
	"github.com/noah-isme/backend-earn/internal/token"
	"github.com/noah-isme/backend-earn/internal/wallet"
)

func main() {
	logger := obs.NewLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	deps, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close()

	shutdownTracer, err := obs.SetupTracing(ctx, "backend-earn-api", cfg.AppEnv, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	metrics := obs.NewHTTPMetrics("earn", nil)
	obs.MustRegisterDomainMetrics("earn", nil)

	asynqClient := asynq.NewClient(deps.AsynqOpt)
	defer func() { _ = asynqClient.Close() }()

	validate := validator.New()

	merchantStore := merchant.NewStore(deps.Pool)
	tokenStore := token.NewPGStore(deps.Pool)
	eventStore := &events.Store{Pool: deps.Pool}
	notifyStore := &notify.Store{Pool: deps.Pool}
	operatorStore := &auth.Store{Pool: deps.Pool}

	bus := &events.Bus{Store: eventStore, Log: logger}
	if cfg.WebhookDeliveryEnabled {
		bus.Dispatcher = &notify.Scheduler{
			Client:     asynqClient,
			Store:      notifyStore,
			MaxRetries: cfg.WebhookMaxAttempts,
			Timeout:    cfg.WebhookRequestTimeout,
			Log:        logger,
		}
	}

	tokenSvc := &token.Service{
		Store:         tokenStore,
		Wallets:       wallet.PGResolver{Pool: deps.Pool},
		Events:        bus,
		TTL:           cfg.EarnTokenTTL,
		PointsPerUnit: cfg.PointsPerUnit,
	}

	var source merchant.Source
	if cfg.MerchantMode == config.MerchantModeStatic {
		source = merchant.StaticSource{Finder: merchantStore, MerchantID: cfg.DefaultMerchantID}
	} else {
		source = merchant.HostSource{Finder: merchantStore}
	}

	tokenHandler := &token.Handler{
		Svc:     tokenSvc,
		Source:  source,
		Tenants: merchantStore,
		Links: merchant.ClaimLinkBuilder{
			BaseURL:     cfg.ClaimBaseURL,
			UserAppApex: cfg.UserAppApex,
		},
		Mode:       string(cfg.MerchantMode),
		ClaimantID: cfg.DemoClaimantID,
		Log:        logger,
	}

	tokens := auth.TokenIssuer{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   "backend-earn",
		Audience: "merchant-console",
		TTL:      cfg.AccessTokenTTL,
	}
	authHandler := &auth.Handler{
		Svc:      &auth.Service{Operators: operatorStore, Tokens: tokens},
		Validate: validate,
		Log:      logger,
	}

	notifyHandler := &notify.Handler{Store: notifyStore, Validate: validate, Log: logger}
	eventsHandler := &events.Handler{Store: eventStore, Log: logger}
	analyticsHandler := &analytics.Handler{
		Svc: &analytics.Service{
			Pool:     deps.Pool,
			RDB:      deps.RDB,
			CacheTTL: cfg.AnalyticsCacheTTL,
			Log:      logger,
		},
		Log: logger,
	}
	healthHandler := &health.Handler{Pool: deps.Pool, RDB: deps.RDB}

	globalLimit, err := app.GlobalRateLimiter(deps.RDB, cfg.GlobalRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("build global rate limiter")
	}
	issueLimit := &ratelimit.Sliding{
		RDB:    deps.RDB,
		Prefix: "ratelimit:issue",
		Window: cfg.IssueRateWindow,
		Max:    cfg.IssueRateMax,
		Log:    logger,
	}
	idem := common.Idempotency{RDB: deps.RDB, TTL: cfg.IdempotencyTTL}

	resolver := merchant.NewResolver(cfg.BaseApex, cfg.DevHostSuffixes, cfg.PreviewSuffix)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(common.SecurityHeaders)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(obs.AccessLog(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(obs.Trace)
	r.Use(obs.Instrument(metrics))
	r.Use(resolver.Middleware)
	r.Use(globalLimit)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/debug", chimw.Profiler())

	r.Get("/claim", tokenHandler.Claim)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Get("/earn/tokens/{code}/status", tokenHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOperator(tokens))
			r.Get("/auth/me", authHandler.Me)

			r.Group(func(r chi.Router) {
				if cfg.MerchantMode == config.MerchantModeHost {
					r.Use(merchant.RequireSlug)
				}
				r.Use(issueLimit.Middleware(common.ClientIP))
				r.Use(idem.Middleware)
				r.Post("/earn/tokens", tokenHandler.Issue)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Get("/events", eventsHandler.Recent)
				r.Get("/webhooks", notifyHandler.List)
				r.Post("/webhooks", notifyHandler.Create)
				r.Delete("/webhooks/{id}", notifyHandler.Delete)
				r.Get("/webhooks/topics", notifyHandler.Topics)
				r.Get("/analytics/earn", analyticsHandler.Earn)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           otelhttp.NewHandler(r, "backend-earn-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("merchant_mode", string(cfg.MerchantMode)).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}
