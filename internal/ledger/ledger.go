package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// EventIssue is the event type recorded when points are credited for a
// claimed earn token.
const EventIssue = "issue"

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so entries can be
// appended standalone or inside the claim transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Entry is one append-only points balance change. Never mutated or deleted.
type Entry struct {
	WalletID      string
	TenantID      string
	EventType     string
	Delta         int64
	Reason        string
	EarnTokenCode string
	CreatedAt     time.Time
}

// Append inserts a ledger entry. Entries carrying an earn-token code are
// keyed by it, so a replayed credit for the same token is a no-op; the
// returned bool reports whether a row was written.
func Append(ctx context.Context, db DBTX, e Entry) (bool, error) {
	if strings.TrimSpace(e.WalletID) == "" {
		return false, fmt.Errorf("ledger: wallet id is required")
	}
	if e.EventType == "" {
		e.EventType = EventIssue
	}
	const stmt = `
INSERT INTO points_ledger (wallet_id, tenant_id, event_type, delta, reason, earn_token_code)
VALUES ($1, NULLIF($2, '')::uuid, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
ON CONFLICT (earn_token_code) WHERE earn_token_code IS NOT NULL DO NOTHING`

	tag, err := db.Exec(ctx, stmt, e.WalletID, e.TenantID, e.EventType, e.Delta, e.Reason, e.EarnTokenCode)
	if err != nil {
		return false, fmt.Errorf("ledger append: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Balance sums all deltas recorded for a wallet.
func Balance(ctx context.Context, db DBTX, walletID string) (int64, error) {
	const query = `SELECT COALESCE(SUM(delta), 0) FROM points_ledger WHERE wallet_id = $1`

	var total int64
	if err := db.QueryRow(ctx, query, walletID).Scan(&total); err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}
	return total, nil
}
