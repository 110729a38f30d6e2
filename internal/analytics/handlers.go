package analytics

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-earn/internal/common"
)

// Handler serves the console analytics endpoint.
type Handler struct {
	Svc *Service
	Log zerolog.Logger
}

// Earn handles GET /api/v1/admin/analytics/earn. The optional window query
// parameter accepts a Go duration; it defaults to 24h and is capped at 30d.
func (h *Handler) Earn(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			common.JSONError(w, http.StatusBadRequest, "INVALID_WINDOW", "window must be a positive duration", nil)
			return
		}
		window = parsed
	}
	if window > 30*24*time.Hour {
		window = 30 * 24 * time.Hour
	}

	summary, err := h.Svc.EarnSummary(r.Context(), window, r.URL.Query().Get("merchant_id"))
	if err != nil {
		h.Log.Error().Err(err).Msg("earn summary")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not compute summary", nil)
		return
	}
	common.Data(w, http.StatusOK, summary)
}
