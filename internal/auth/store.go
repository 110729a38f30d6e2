package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no operator matches the lookup.
var ErrNotFound = errors.New("auth: operator not found")

// Operator is a merchant-console account allowed to issue tokens and
// manage webhooks.
type Operator struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Store reads operator accounts from Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

// ByEmail fetches an operator by login email.
func (s *Store) ByEmail(ctx context.Context, email string) (Operator, error) {
	const query = `
SELECT id, email, name, password_hash, created_at
FROM operators
WHERE email = $1`

	var op Operator
	err := s.Pool.QueryRow(ctx, query, email).Scan(&op.ID, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operator{}, ErrNotFound
		}
		return Operator{}, fmt.Errorf("operator by email: %w", err)
	}
	return op, nil
}

// ByID fetches an operator by id.
func (s *Store) ByID(ctx context.Context, id string) (Operator, error) {
	const query = `
SELECT id, email, name, password_hash, created_at
FROM operators
WHERE id = $1`

	var op Operator
	err := s.Pool.QueryRow(ctx, query, id).Scan(&op.ID, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operator{}, ErrNotFound
		}
		return Operator{}, fmt.Errorf("operator by id: %w", err)
	}
	return op, nil
}
