package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no wallet exists for the claiming identity.
var ErrNotFound = errors.New("wallet: not found")

// Wallet is the balance holder a ledger credit is attributed to. Owned by
// the account subsystem; this service only reads its identifier.
type Wallet struct {
	ID     string
	UserID string
}

// Resolver maps a claiming identity to its wallet. The claim flow treats
// this as a pluggable capability: the default deployment resolves a
// configured placeholder identity, a real deployment substitutes an
// authenticated principal.
type Resolver interface {
	Resolve(ctx context.Context, identity string) (Wallet, error)
}

// PGResolver resolves wallets from the wallets table by owning user id.
type PGResolver struct {
	Pool *pgxpool.Pool
}

// Resolve looks up the wallet owned by the given identity.
func (r PGResolver) Resolve(ctx context.Context, identity string) (Wallet, error) {
	if r.Pool == nil {
		return Wallet{}, errors.New("wallet: pool not configured")
	}
	const query = `SELECT id, user_id FROM wallets WHERE user_id = $1`

	var w Wallet
	err := r.Pool.QueryRow(ctx, query, identity).Scan(&w.ID, &w.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, fmt.Errorf("resolve wallet: %w", err)
	}
	return w, nil
}
