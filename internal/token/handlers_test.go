package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-earn/internal/merchant"
	"github.com/noah-isme/backend-earn/internal/obs"
)

type stubSource struct {
	m   merchant.Merchant
	err error
}

func (s stubSource) Resolve(context.Context) (merchant.Merchant, error) { return s.m, s.err }

type stubTenants struct{ slug string }

func (s stubTenants) TenantByID(context.Context, string) (merchant.Tenant, error) {
	return merchant.Tenant{ID: "tenant-1", Slug: s.slug}, nil
}

func newTestHandler(t *testing.T, src merchant.Source) (*Handler, *stubStore) {
	t.Helper()
	obs.MustRegisterDomainMetrics("test", prometheus.NewRegistry())

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newStubStore()
	svc, _ := newTestService(store, now)
	return &Handler{
		Svc:        svc,
		Source:     src,
		Tenants:    stubTenants{slug: "acme"},
		Links:      merchant.ClaimLinkBuilder{UserAppApex: "example.com"},
		Mode:       "host",
		ClaimantID: "demo-user",
		Log:        zerolog.Nop(),
	}, store
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestIssueHandler(t *testing.T) {
	h, _ := newTestHandler(t, stubSource{m: merchant.Merchant{ID: "merchant-1", TenantID: "tenant-1"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/earn/tokens",
		strings.NewReader(`{"amountCents":2450,"points":245,"reason":"beach towel"}`))
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	data, _ := decodeBody(t, rec)["data"].(map[string]any)
	code, _ := data["code"].(string)
	if len(code) != 26 {
		t.Fatalf("code = %q, want 26 chars", code)
	}
	claimURL, _ := data["claim_url"].(string)
	if claimURL != "https://acme.example.com/claim?code="+code {
		t.Fatalf("claim_url = %q", claimURL)
	}
}

func TestIssueHandlerErrors(t *testing.T) {
	t.Run("no slug", func(t *testing.T) {
		h, _ := newTestHandler(t, stubSource{err: merchant.ErrNoSlug})
		rec := httptest.NewRecorder()
		h.Issue(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "SLUG_REQUIRED" {
			t.Fatalf("status = %d code = %s", rec.Code, rec.Body.String())
		}
	})
	t.Run("unknown merchant", func(t *testing.T) {
		h, _ := newTestHandler(t, stubSource{err: merchant.ErrNotFound})
		rec := httptest.NewRecorder()
		h.Issue(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		if rec.Code != http.StatusNotFound || errorCode(t, rec) != "MERCHANT_NOT_FOUND" {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	})
	t.Run("bad json", func(t *testing.T) {
		h, _ := newTestHandler(t, stubSource{m: merchant.Merchant{ID: "m"}})
		rec := httptest.NewRecorder()
		h.Issue(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_BODY" {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	})
	t.Run("invalid amount", func(t *testing.T) {
		h, _ := newTestHandler(t, stubSource{m: merchant.Merchant{ID: "m"}})
		rec := httptest.NewRecorder()
		h.Issue(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amountCents":-5,"points":10}`)))
		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_AMOUNT" {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	})
	t.Run("amount beyond integer range", func(t *testing.T) {
		h, _ := newTestHandler(t, stubSource{m: merchant.Merchant{ID: "m"}})
		rec := httptest.NewRecorder()
		h.Issue(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amountCents":1e300,"points":10}`)))
		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_AMOUNT" {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	})
}

func TestStatusHandler(t *testing.T) {
	h, _ := newTestHandler(t, stubSource{m: merchant.Merchant{ID: "merchant-1"}})

	tok, err := h.Svc.Issue(context.Background(), testMerchant, IssueParams{AmountCents: 100, Points: 10})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/earn/tokens/{code}/status", h.Status)

	poll := func(code string) (int, string) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/earn/tokens/"+code+"/status", nil))
		data, _ := decodeBody(t, rec)["data"].(map[string]any)
		status, _ := data["status"].(string)
		return rec.Code, status
	}

	if code, status := poll(tok.Code); code != http.StatusOK || status != "open" {
		t.Fatalf("got %d %q, want 200 open", code, status)
	}
	if code, status := poll("doesnotexist"); code != http.StatusOK || status != "missing" {
		t.Fatalf("got %d %q, want 200 missing", code, status)
	}

	if _, err := h.Svc.Claim(context.Background(), tok.Code, "demo-user"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if code, status := poll(tok.Code); code != http.StatusOK || status != "claimed" {
		t.Fatalf("got %d %q, want 200 claimed", code, status)
	}
}

func TestClaimHandler(t *testing.T) {
	h, store := newTestHandler(t, stubSource{m: merchant.Merchant{ID: "merchant-1"}})

	tok, err := h.Svc.Issue(context.Background(), testMerchant, IssueParams{AmountCents: 2450, Points: 245})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claim := func(code string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Claim(rec, httptest.NewRequest(http.MethodGet, "/claim?code="+code, nil))
		return rec
	}

	rec := claim(tok.Code)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	data, _ := decodeBody(t, rec)["data"].(map[string]any)
	if points, _ := data["points"].(float64); points != 245 {
		t.Fatalf("points = %v, want 245", data["points"])
	}
	if store.credits[tok.Code] != 245 {
		t.Fatalf("credited = %d, want 245", store.credits[tok.Code])
	}

	if rec := claim(tok.Code); rec.Code != http.StatusConflict || errorCode(t, rec) != "ALREADY_CLAIMED" {
		t.Fatalf("replay: status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec := claim("doesnotexist"); rec.Code != http.StatusNotFound || errorCode(t, rec) != "UNKNOWN_CODE" {
		t.Fatalf("unknown: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Claim(rec, httptest.NewRequest(http.MethodGet, "/claim", nil))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "MISSING_CODE" {
		t.Fatalf("missing code: status = %d body = %s", rec.Code, rec.Body.String())
	}

	t.Run("expired", func(t *testing.T) {
		expired, err := h.Svc.Issue(context.Background(), testMerchant, IssueParams{AmountCents: 100, Points: 10})
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		base := h.Svc.Now
		h.Svc.Now = func() time.Time { return base().Add(2 * time.Minute) }
		defer func() { h.Svc.Now = base }()

		if rec := claim(expired.Code); rec.Code != http.StatusGone || errorCode(t, rec) != "EXPIRED" {
			t.Fatalf("expired: status = %d body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("no wallet", func(t *testing.T) {
		h.ClaimantID = "stranger"
		defer func() { h.ClaimantID = "demo-user" }()
		open, err := h.Svc.Issue(context.Background(), testMerchant, IssueParams{AmountCents: 100, Points: 10})
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if rec := claim(open.Code); rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "NO_WALLET" {
			t.Fatalf("no wallet: status = %d body = %s", rec.Code, rec.Body.String())
		}
	})
}
