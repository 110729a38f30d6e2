package token

import (
	"errors"
	"time"
)

// Status is the read-time judgment of a token's lifecycle position. It is
// never stored; it is computed from the row's timestamps at observation time.
type Status string

const (
	StatusMissing Status = "missing"
	StatusOpen    Status = "open"
	StatusClaimed Status = "claimed"
	StatusExpired Status = "expired"
)

// Claim outcome sentinels. The HTTP boundary maps each to its own error
// code and status.
var (
	ErrUnknownCode    = errors.New("token: unknown code")
	ErrAlreadyClaimed = errors.New("token: already claimed")
	ErrExpired        = errors.New("token: expired")
	ErrNoWallet       = errors.New("token: no wallet for claimant")
)

// EarnToken is a single-use bearer credential for a fixed points amount,
// scoped to the merchant that issued it.
type EarnToken struct {
	Code        string
	MerchantID  string
	AmountCents int64
	Points      int64
	Reason      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ClaimedAt   *time.Time
	ClaimedBy   string
}

// StatusAt reports the token's status as observed at the given instant.
// A claimed token stays claimed even past its expiry instant.
func (t EarnToken) StatusAt(now time.Time) Status {
	if t.ClaimedAt != nil {
		return StatusClaimed
	}
	if !now.Before(t.ExpiresAt) {
		return StatusExpired
	}
	return StatusOpen
}
