package token

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/noah-isme/backend-earn/internal/common"
	"github.com/noah-isme/backend-earn/internal/events"
	"github.com/noah-isme/backend-earn/internal/merchant"
	"github.com/noah-isme/backend-earn/internal/wallet"
)

// Store abstracts token persistence for the service.
type Store interface {
	Create(ctx context.Context, t EarnToken) (EarnToken, error)
	Get(ctx context.Context, code string) (EarnToken, error)
	Claim(ctx context.Context, code string, w wallet.Wallet, claimantID string, now time.Time) (EarnToken, error)
}

// Emitter publishes domain events. Nil-able; issuance and claiming work
// without an event bus wired.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) error
}

// IssueParams are the merchant-supplied facts of a purchase being rewarded.
// Points may be left at zero to have the service derive them from the amount.
type IssueParams struct {
	AmountCents float64
	Points      float64
	Reason      string
}

// ClaimResult reports a successful claim back to the claiming client.
type ClaimResult struct {
	Token    EarnToken
	WalletID string
}

// Service implements token issuance, claiming and status reads on top of a
// Store. PointsPerUnit is the points-per-dollar rate used when issuance
// leaves points unset. Now is injectable for tests; it defaults to time.Now.
type Service struct {
	Store         Store
	Wallets       wallet.Resolver
	Events        Emitter
	TTL           time.Duration
	PointsPerUnit int
	Now           func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// maxIssueValue bounds amounts and points. Larger float64 values do not
// survive the conversion to int64 intact, so issuance rejects them outright.
const maxIssueValue = float64(1 << 53)

// Issue mints a fresh single-use token for the merchant and returns it.
// The amount must be finite and positive; points are rounded to the nearest
// integer, and derived from the amount at the configured rate when omitted.
func (s *Service) Issue(ctx context.Context, m merchant.Merchant, in IssueParams) (EarnToken, error) {
	if math.IsNaN(in.AmountCents) || math.IsInf(in.AmountCents, 0) || in.AmountCents <= 0 || in.AmountCents > maxIssueValue {
		return EarnToken{}, common.NewAppError("INVALID_AMOUNT", "amountCents must be a positive number within range", http.StatusBadRequest)
	}
	if math.IsNaN(in.Points) || math.IsInf(in.Points, 0) || in.Points < 0 || in.Points > maxIssueValue {
		return EarnToken{}, common.NewAppError("INVALID_POINTS", "points must be a non-negative number within range", http.StatusBadRequest)
	}

	amount := int64(math.Round(in.AmountCents))
	points := int64(math.Round(in.Points))
	if points == 0 {
		points = s.derivedPoints(amount)
	}
	if points <= 0 {
		return EarnToken{}, common.NewAppError("INVALID_POINTS", "points must be positive or derivable from amountCents", http.StatusBadRequest)
	}

	now := s.now()
	t := EarnToken{
		MerchantID:  m.ID,
		AmountCents: amount,
		Points:      points,
		Reason:      in.Reason,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.TTL),
	}

	created, err := s.Store.Create(ctx, t)
	if err != nil {
		return EarnToken{}, err
	}
	s.emit(ctx, events.TopicTokenIssued, created.Code, map[string]any{
		"code":        created.Code,
		"merchant_id": created.MerchantID,
		"points":      created.Points,
		"expires_at":  created.ExpiresAt,
	})
	return created, nil
}

// Claim redeems a token for the given claimant. The pre-checks order the
// client-visible failures (unknown, already claimed, expired, no wallet);
// the store's conditional update then settles any race. A wallet miss
// leaves the token open for a later retry.
func (s *Service) Claim(ctx context.Context, code, claimantID string) (ClaimResult, error) {
	now := s.now()

	t, err := s.Store.Get(ctx, code)
	if err != nil {
		return ClaimResult{}, err
	}
	switch t.StatusAt(now) {
	case StatusClaimed:
		return ClaimResult{}, ErrAlreadyClaimed
	case StatusExpired:
		return ClaimResult{}, ErrExpired
	}

	w, err := s.Wallets.Resolve(ctx, claimantID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return ClaimResult{}, ErrNoWallet
		}
		return ClaimResult{}, fmt.Errorf("claim: resolve wallet: %w", err)
	}

	claimed, err := s.Store.Claim(ctx, code, w, claimantID, now)
	if err != nil {
		return ClaimResult{}, err
	}
	s.emit(ctx, events.TopicTokenClaimed, claimed.Code, map[string]any{
		"code":        claimed.Code,
		"merchant_id": claimed.MerchantID,
		"points":      claimed.Points,
		"wallet_id":   w.ID,
		"claimed_at":  claimed.ClaimedAt,
	})
	return ClaimResult{Token: claimed, WalletID: w.ID}, nil
}

// Status reports the token's state as observed now. Unknown codes yield
// StatusMissing rather than an error so pollers get a uniform shape.
func (s *Service) Status(ctx context.Context, code string) (Status, error) {
	t, err := s.Store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUnknownCode) {
			return StatusMissing, nil
		}
		return "", err
	}
	return t.StatusAt(s.now()), nil
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	// Event publication is best effort; the caller already has its result.
	_ = s.Events.Emit(ctx, topic, aggregateID, payload)
}

// derivedPoints converts a purchase amount into points at the
// points-per-dollar rate. Zero when no rate is configured.
func (s *Service) derivedPoints(amountCents int64) int64 {
	if s.PointsPerUnit <= 0 {
		return 0
	}
	return int64(math.Round(float64(amountCents) * float64(s.PointsPerUnit) / 100))
}
