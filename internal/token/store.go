package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-earn/internal/ledger"
	"github.com/noah-isme/backend-earn/internal/wallet"
)

const tokenColumns = `
code, merchant_id, amount_cents, points, COALESCE(reason, ''),
created_at, expires_at, claimed_at, COALESCE(claimed_by, '')`

// PGStore persists earn tokens in Postgres. The claim path runs inside a
// single transaction whose conditional update is the linearization point
// for concurrent claims.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewPGStore constructs a token store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

// Create inserts a new token row, generating its code. On the (vanishingly
// rare) code collision the insert is retried with a fresh code.
func (s *PGStore) Create(ctx context.Context, t EarnToken) (EarnToken, error) {
	const stmt = `
INSERT INTO earn_tokens (code, merchant_id, amount_cents, points, reason, created_at, expires_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`

	for attempt := 0; attempt < 3; attempt++ {
		code, err := NewCode()
		if err != nil {
			return EarnToken{}, err
		}
		_, err = s.Pool.Exec(ctx, stmt, code, t.MerchantID, t.AmountCents, t.Points, t.Reason, t.CreatedAt, t.ExpiresAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				continue
			}
			return EarnToken{}, fmt.Errorf("create earn token: %w", err)
		}
		t.Code = code
		return t, nil
	}
	return EarnToken{}, errors.New("create earn token: code collision retries exhausted")
}

// Get fetches a token by code. Unknown codes report ErrUnknownCode.
func (s *PGStore) Get(ctx context.Context, code string) (EarnToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM earn_tokens WHERE code = $1`

	t, err := scanToken(s.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EarnToken{}, ErrUnknownCode
		}
		return EarnToken{}, fmt.Errorf("get earn token: %w", err)
	}
	return t, nil
}

// Claim atomically marks the token claimed and credits the wallet's ledger
// in one transaction. The conditional update only succeeds for a token that
// is unclaimed and not yet expired at the claim instant; losing racers get
// the row re-read so the failure is classified precisely.
func (s *PGStore) Claim(ctx context.Context, code string, w wallet.Wallet, claimantID string, now time.Time) (EarnToken, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return EarnToken{}, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	update := `
UPDATE earn_tokens
SET claimed_at = $2, claimed_by = $3
WHERE code = $1 AND claimed_at IS NULL AND expires_at > $2
RETURNING ` + tokenColumns

	t, err := scanToken(tx.QueryRow(ctx, update, code, now, claimantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EarnToken{}, s.classify(ctx, tx, code, now)
		}
		return EarnToken{}, fmt.Errorf("claim: mark token: %w", err)
	}

	_, err = ledger.Append(ctx, tx, ledger.Entry{
		WalletID:      w.ID,
		TenantID:      "",
		EventType:     ledger.EventIssue,
		Delta:         t.Points,
		Reason:        "QR earn",
		EarnTokenCode: t.Code,
	})
	if err != nil {
		return EarnToken{}, fmt.Errorf("claim: credit ledger: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return EarnToken{}, fmt.Errorf("claim: commit: %w", err)
	}
	return t, nil
}

// classify re-reads a token whose conditional update matched no row and
// turns the miss into the right sentinel.
func (s *PGStore) classify(ctx context.Context, tx pgx.Tx, code string, now time.Time) error {
	query := `SELECT ` + tokenColumns + ` FROM earn_tokens WHERE code = $1`

	t, err := scanToken(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUnknownCode
		}
		return fmt.Errorf("claim: classify: %w", err)
	}
	if t.ClaimedAt != nil {
		return ErrAlreadyClaimed
	}
	return ErrExpired
}

func scanToken(row pgx.Row) (EarnToken, error) {
	var t EarnToken
	err := row.Scan(
		&t.Code, &t.MerchantID, &t.AmountCents, &t.Points, &t.Reason,
		&t.CreatedAt, &t.ExpiresAt, &t.ClaimedAt, &t.ClaimedBy,
	)
	return t, err
}
