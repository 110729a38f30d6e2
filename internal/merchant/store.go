package merchant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no merchant exists for the given slug or id.
	ErrNotFound = errors.New("merchant: not found")
	// ErrNoSlug indicates the request host did not resolve to any slug.
	// Reported separately from ErrNotFound because the boundary maps them
	// to different responses (400 vs 404).
	ErrNoSlug = errors.New("merchant: no slug resolved from host")
)

// Store reads merchant and tenant records from Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

// NewStore constructs a merchant store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// BySlug looks a merchant up by its routing slug.
func (s *Store) BySlug(ctx context.Context, slug string) (Merchant, error) {
	const query = `
SELECT id, slug, name, COALESCE(tenant_id::text, ''), created_at
FROM merchants
WHERE slug = $1`

	var m Merchant
	err := s.Pool.QueryRow(ctx, query, slug).Scan(&m.ID, &m.Slug, &m.Name, &m.TenantID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Merchant{}, ErrNotFound
		}
		return Merchant{}, fmt.Errorf("merchant by slug: %w", err)
	}
	return m, nil
}

// ByID looks a merchant up by its identifier.
func (s *Store) ByID(ctx context.Context, id string) (Merchant, error) {
	const query = `
SELECT id, slug, name, COALESCE(tenant_id::text, ''), created_at
FROM merchants
WHERE id = $1`

	var m Merchant
	err := s.Pool.QueryRow(ctx, query, id).Scan(&m.ID, &m.Slug, &m.Name, &m.TenantID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Merchant{}, ErrNotFound
		}
		return Merchant{}, fmt.Errorf("merchant by id: %w", err)
	}
	return m, nil
}

// TenantByID fetches the tenant owning a merchant's customer app.
func (s *Store) TenantByID(ctx context.Context, id string) (Tenant, error) {
	const query = `SELECT id, slug FROM tenants WHERE id = $1`

	var t Tenant
	err := s.Pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenant by id: %w", err)
	}
	return t, nil
}
