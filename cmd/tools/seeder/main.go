package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-earn/internal/app"
	"github.com/noah-isme/backend-earn/internal/auth"
	"github.com/noah-isme/backend-earn/internal/config"
	"github.com/noah-isme/backend-earn/internal/obs"
)

// Seeds a local environment: one tenant, one merchant under it, an operator
// account and a demo wallet. Safe to rerun; every insert is upsert-shaped.
func main() {
	var (
		tenantSlug   = flag.String("tenant", "acme", "tenant slug")
		merchantSlug = flag.String("merchant", "acme", "merchant slug")
		merchantName = flag.String("merchant-name", "Acme Beach Shop", "merchant display name")
		email        = flag.String("email", "operator@example.com", "operator email")
		password     = flag.String("password", "changeme-please", "operator password")
		demoUser     = flag.String("demo-user", "demo-user", "demo wallet owner id")
	)
	flag.Parse()

	logger := obs.NewLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	var tenantID string
	err = pool.QueryRow(ctx, `
INSERT INTO tenants (slug, name) VALUES ($1, $2)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, *tenantSlug, *merchantName).Scan(&tenantID)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed tenant")
	}

	var merchantID string
	err = pool.QueryRow(ctx, `
INSERT INTO merchants (slug, name, tenant_id) VALUES ($1, $2, $3)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, tenant_id = EXCLUDED.tenant_id
RETURNING id`, *merchantSlug, *merchantName, tenantID).Scan(&merchantID)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed merchant")
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash password")
	}
	_, err = pool.Exec(ctx, `
INSERT INTO operators (email, name, password_hash) VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash`,
		*email, "Seeded Operator", hash)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed operator")
	}

	var walletID string
	err = pool.QueryRow(ctx, `
INSERT INTO wallets (user_id) VALUES ($1)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING id`, *demoUser).Scan(&walletID)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed wallet")
	}

	logger.Info().
		Str("tenant_id", tenantID).
		Str("merchant_id", merchantID).
		Str("wallet_id", walletID).
		Str("operator_email", *email).
		Msg("seed complete")
}
