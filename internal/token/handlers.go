package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-earn/internal/common"
	"github.com/noah-isme/backend-earn/internal/merchant"
	"github.com/noah-isme/backend-earn/internal/obs"
)

// TenantFinder fetches the tenant a claim link is built for.
type TenantFinder interface {
	TenantByID(ctx context.Context, id string) (merchant.Tenant, error)
}

// Handler exposes the earn-token HTTP surface: issuance for the merchant
// console, status polling for the QR screen, and the customer claim route.
type Handler struct {
	Svc        *Service
	Source     merchant.Source
	Tenants    TenantFinder
	Links      merchant.ClaimLinkBuilder
	Mode       string
	ClaimantID string
	Log        zerolog.Logger
}

type issueRequest struct {
	AmountCents float64 `json:"amountCents"`
	Points      float64 `json:"points"`
	Reason      string  `json:"reason"`
}

// Issue handles POST /api/v1/earn/tokens.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	m, err := h.Source.Resolve(ctx)
	if err != nil {
		switch {
		case errors.Is(err, merchant.ErrNoSlug):
			common.JSONError(w, http.StatusBadRequest, "SLUG_REQUIRED", "merchant subdomain not provided", nil)
		case errors.Is(err, merchant.ErrNotFound):
			common.JSONError(w, http.StatusNotFound, "MERCHANT_NOT_FOUND", "no merchant for this host", nil)
		default:
			h.Log.Error().Err(err).Msg("resolve merchant")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not resolve merchant", nil)
		}
		return
	}

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}

	t, err := h.Svc.Issue(ctx, m, IssueParams{
		AmountCents: req.AmountCents,
		Points:      req.Points,
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.AppErrorResponse(w, appErr)
			return
		}
		h.Log.Error().Err(err).Str("merchant_id", m.ID).Msg("issue earn token")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not issue token", nil)
		return
	}

	obs.TokensIssuedTotal.WithLabelValues(h.Mode).Inc()
	common.Data(w, http.StatusCreated, map[string]any{
		"code":       t.Code,
		"claim_url":  h.claimURL(ctx, m, t.Code),
		"expires_at": t.ExpiresAt,
	})
}

// Status handles GET /api/v1/earn/tokens/{code}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "MISSING_CODE", "token code is required", nil)
		return
	}

	st, err := h.Svc.Status(r.Context(), code)
	if err != nil {
		h.Log.Error().Err(err).Msg("token status")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not read token status", nil)
		return
	}

	obs.TokenStatusPollsTotal.WithLabelValues(string(st)).Inc()
	common.Data(w, http.StatusOK, map[string]any{"status": string(st)})
}

// Claim handles GET /claim?code=... on the customer-facing surface.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "MISSING_CODE", "code query parameter is required", nil)
		return
	}

	res, err := h.Svc.Claim(r.Context(), code, h.ClaimantID)
	if err != nil {
		h.writeClaimError(w, err)
		return
	}

	obs.TokenClaimsTotal.WithLabelValues("claimed").Inc()
	common.Data(w, http.StatusOK, map[string]any{"points": res.Token.Points})
}

func (h *Handler) writeClaimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownCode):
		obs.TokenClaimsTotal.WithLabelValues("unknown").Inc()
		common.JSONError(w, http.StatusNotFound, "UNKNOWN_CODE", "no token exists for this code", nil)
	case errors.Is(err, ErrAlreadyClaimed):
		obs.TokenClaimsTotal.WithLabelValues("already_claimed").Inc()
		common.JSONError(w, http.StatusConflict, "ALREADY_CLAIMED", "this token was already claimed", nil)
	case errors.Is(err, ErrExpired):
		obs.TokenClaimsTotal.WithLabelValues("expired").Inc()
		common.JSONError(w, http.StatusGone, "EXPIRED", "this token has expired", nil)
	case errors.Is(err, ErrNoWallet):
		obs.TokenClaimsTotal.WithLabelValues("no_wallet").Inc()
		common.JSONError(w, http.StatusUnprocessableEntity, "NO_WALLET", "no wallet exists for the claiming account", nil)
	default:
		obs.TokenClaimsTotal.WithLabelValues("error").Inc()
		h.Log.Error().Err(err).Msg("claim earn token")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not claim token", nil)
	}
}

// claimURL builds the link embedded in the QR image. Link construction is
// best effort; issuance still succeeds when the tenant lookup fails.
func (h *Handler) claimURL(ctx context.Context, m merchant.Merchant, code string) string {
	slug := ""
	if m.TenantID != "" && h.Tenants != nil {
		if tenant, err := h.Tenants.TenantByID(ctx, m.TenantID); err == nil {
			slug = tenant.Slug
		} else {
			h.Log.Warn().Err(err).Str("tenant_id", m.TenantID).Msg("tenant lookup for claim link")
		}
	}
	return h.Links.ClaimURL(slug, code)
}
