package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/noah-isme/backend-earn/internal/common"
	"github.com/noah-isme/backend-earn/internal/merchant"
	"github.com/noah-isme/backend-earn/internal/wallet"
)

type stubStore struct {
	mu      sync.Mutex
	tokens  map[string]EarnToken
	credits map[string]int64
}

func newStubStore() *stubStore {
	return &stubStore{
		tokens:  make(map[string]EarnToken),
		credits: make(map[string]int64),
	}
}

func (s *stubStore) Create(_ context.Context, t EarnToken) (EarnToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, err := NewCode()
	if err != nil {
		return EarnToken{}, err
	}
	t.Code = code
	s.tokens[code] = t
	return t, nil
}

func (s *stubStore) Get(_ context.Context, code string) (EarnToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[code]
	if !ok {
		return EarnToken{}, ErrUnknownCode
	}
	return t, nil
}

func (s *stubStore) Claim(_ context.Context, code string, w wallet.Wallet, claimantID string, now time.Time) (EarnToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[code]
	if !ok {
		return EarnToken{}, ErrUnknownCode
	}
	if t.ClaimedAt != nil {
		return EarnToken{}, ErrAlreadyClaimed
	}
	if !now.Before(t.ExpiresAt) {
		return EarnToken{}, ErrExpired
	}
	claimedAt := now
	t.ClaimedAt = &claimedAt
	t.ClaimedBy = claimantID
	s.tokens[code] = t
	if _, done := s.credits[code]; !done {
		s.credits[code] = t.Points
	}
	return t, nil
}

type stubWallets struct {
	wallets map[string]wallet.Wallet
}

func (s stubWallets) Resolve(_ context.Context, identity string) (wallet.Wallet, error) {
	w, ok := s.wallets[identity]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return w, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic, _ string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func newTestService(store *stubStore, now time.Time) (*Service, *recordingEmitter) {
	emitter := &recordingEmitter{}
	svc := &Service{
		Store: store,
		Wallets: stubWallets{wallets: map[string]wallet.Wallet{
			"demo-user": {ID: "wallet-1", UserID: "demo-user"},
		}},
		Events:        emitter,
		TTL:           2 * time.Minute,
		PointsPerUnit: 10,
		Now:           func() time.Time { return now },
	}
	return svc, emitter
}

var testMerchant = merchant.Merchant{ID: "merchant-1", Slug: "acme", Name: "Acme"}

func TestIssueRoundsAndSetsExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newStubStore()
	svc, emitter := newTestService(store, now)

	tok, err := svc.Issue(context.Background(), testMerchant, IssueParams{
		AmountCents: 2450,
		Points:      245.4,
		Reason:      "beach towel",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.Code == "" {
		t.Fatal("expected a generated code")
	}
	if tok.Points != 245 {
		t.Fatalf("points = %d, want 245", tok.Points)
	}
	if tok.AmountCents != 2450 {
		t.Fatalf("amount = %d, want 2450", tok.AmountCents)
	}
	if got, want := tok.ExpiresAt, now.Add(2*time.Minute); !got.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got, want)
	}
	if len(emitter.topics) != 1 || emitter.topics[0] != "token.issued" {
		t.Fatalf("emitted topics = %v, want [token.issued]", emitter.topics)
	}
}

func TestIssueRejectsInvalidInput(t *testing.T) {
	now := time.Now()
	svc, _ := newTestService(newStubStore(), now)

	cases := []struct {
		name string
		in   IssueParams
		code string
	}{
		{"zero amount", IssueParams{AmountCents: 0, Points: 10}, "INVALID_AMOUNT"},
		{"negative amount", IssueParams{AmountCents: -5, Points: 10}, "INVALID_AMOUNT"},
		{"nan amount", IssueParams{AmountCents: nan(), Points: 10}, "INVALID_AMOUNT"},
		{"huge amount", IssueParams{AmountCents: 1e300, Points: 10}, "INVALID_AMOUNT"},
		{"negative points", IssueParams{AmountCents: 100, Points: -1}, "INVALID_POINTS"},
		{"inf points", IssueParams{AmountCents: 100, Points: inf()}, "INVALID_POINTS"},
		{"huge points", IssueParams{AmountCents: 100, Points: 1e300}, "INVALID_POINTS"},
		{"amount too small to derive points", IssueParams{AmountCents: 1, Points: 0}, "INVALID_POINTS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Issue(context.Background(), testMerchant, tc.in)
			var appErr *common.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != tc.code {
				t.Fatalf("code = %s, want %s", appErr.Code, tc.code)
			}
		})
	}
}

func nan() float64 { var z float64; return z / z }
func inf() float64 { var z float64; return 1 / z }

func TestIssueDerivesPointsFromAmount(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(newStubStore(), now)

	// $24.50 at 10 points per dollar.
	tok, err := svc.Issue(context.Background(), testMerchant, IssueParams{AmountCents: 2450})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.Points != 245 {
		t.Fatalf("derived points = %d, want 245", tok.Points)
	}

	svc.PointsPerUnit = 0
	_, err = svc.Issue(context.Background(), testMerchant, IssueParams{AmountCents: 2450})
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_POINTS" {
		t.Fatalf("issue without rate: err = %v, want INVALID_POINTS", err)
	}
}

func TestClaimCreditsOnce(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newStubStore()
	svc, emitter := newTestService(store, now)

	tok, err := svc.Issue(context.Background(), testMerchant, IssueParams{AmountCents: 2450, Points: 245})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	res, err := svc.Claim(context.Background(), tok.Code, "demo-user")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Token.Points != 245 {
		t.Fatalf("points = %d, want 245", res.Token.Points)
	}
	if res.Token.ClaimedAt == nil || !res.Token.ClaimedAt.Equal(now) {
		t.Fatalf("claimed_at = %v, want %v", res.Token.ClaimedAt, now)
	}
	if res.Token.ClaimedBy != "demo-user" {
		t.Fatalf("claimed_by = %q", res.Token.ClaimedBy)
	}
	if store.credits[tok.Code] != 245 {
		t.Fatalf("credited = %d, want 245", store.credits[tok.Code])
	}

	_, err = svc.Claim(context.Background(), tok.Code, "demo-user")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
	if store.credits[tok.Code] != 245 {
		t.Fatalf("credit changed after replay: %d", store.credits[tok.Code])
	}
	if len(emitter.topics) != 2 || emitter.topics[1] != "token.claimed" {
		t.Fatalf("emitted topics = %v", emitter.topics)
	}
}

func TestClaimFailures(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newStubStore()
	svc, _ := newTestService(store, now)
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.Claim(ctx, "no-such-code", "demo-user")
		if !errors.Is(err, ErrUnknownCode) {
			t.Fatalf("err = %v, want ErrUnknownCode", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		tok, _ := svc.Issue(ctx, testMerchant, IssueParams{AmountCents: 100, Points: 10})
		svc.Now = func() time.Time { return now.Add(2 * time.Minute) }
		defer func() { svc.Now = func() time.Time { return now } }()

		_, err := svc.Claim(ctx, tok.Code, "demo-user")
		if !errors.Is(err, ErrExpired) {
			t.Fatalf("err = %v, want ErrExpired", err)
		}
	})

	t.Run("claimed wins over expired", func(t *testing.T) {
		tok, _ := svc.Issue(ctx, testMerchant, IssueParams{AmountCents: 100, Points: 10})
		if _, err := svc.Claim(ctx, tok.Code, "demo-user"); err != nil {
			t.Fatalf("claim: %v", err)
		}
		// Past expiry now, but the token was claimed in time.
		svc.Now = func() time.Time { return now.Add(time.Hour) }
		defer func() { svc.Now = func() time.Time { return now } }()

		_, err := svc.Claim(ctx, tok.Code, "demo-user")
		if !errors.Is(err, ErrAlreadyClaimed) {
			t.Fatalf("err = %v, want ErrAlreadyClaimed", err)
		}
	})

	t.Run("no wallet leaves token open", func(t *testing.T) {
		tok, _ := svc.Issue(ctx, testMerchant, IssueParams{AmountCents: 100, Points: 10})
		_, err := svc.Claim(ctx, tok.Code, "stranger")
		if !errors.Is(err, ErrNoWallet) {
			t.Fatalf("err = %v, want ErrNoWallet", err)
		}
		// Still claimable once a wallet exists.
		if _, err := svc.Claim(ctx, tok.Code, "demo-user"); err != nil {
			t.Fatalf("claim after wallet miss: %v", err)
		}
	})
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newStubStore()
	svc, _ := newTestService(store, now)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, testMerchant, IssueParams{AmountCents: 2450, Points: 245})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const claimers = 32
	var wg sync.WaitGroup
	results := make(chan error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Claim(ctx, tok.Code, "demo-user")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyClaimed):
			conflicts++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if conflicts != claimers-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, claimers-1)
	}
	if store.credits[tok.Code] != 245 {
		t.Fatalf("credited = %d, want a single 245 credit", store.credits[tok.Code])
	}
}

func TestStatus(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newStubStore()
	svc, _ := newTestService(store, now)
	ctx := context.Background()

	st, err := svc.Status(ctx, "nope")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st != StatusMissing {
		t.Fatalf("status = %s, want missing", st)
	}

	tok, _ := svc.Issue(ctx, testMerchant, IssueParams{AmountCents: 100, Points: 10})
	if st, _ = svc.Status(ctx, tok.Code); st != StatusOpen {
		t.Fatalf("status = %s, want open", st)
	}

	svc.Now = func() time.Time { return now.Add(2 * time.Minute) }
	if st, _ = svc.Status(ctx, tok.Code); st != StatusExpired {
		t.Fatalf("status = %s, want expired", st)
	}

	// Claim in time, then observe after expiry: claimed sticks.
	svc.Now = func() time.Time { return now }
	if _, err := svc.Claim(ctx, tok.Code, "demo-user"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	svc.Now = func() time.Time { return now.Add(time.Hour) }
	if st, _ = svc.Status(ctx, tok.Code); st != StatusClaimed {
		t.Fatalf("status = %s, want claimed", st)
	}
}
