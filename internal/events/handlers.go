package events

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-earn/internal/common"
)

// Handler serves the operator-facing event feed.
type Handler struct {
	Store *Store
	Log   zerolog.Logger
}

// Recent handles GET /api/v1/admin/events?topic=...&limit=N.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic != TopicTokenIssued && topic != TopicTokenClaimed {
		common.JSONError(w, http.StatusBadRequest, "INVALID_TOPIC", "topic must be token.issued or token.claimed", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	evts, err := h.Store.Recent(r.Context(), topic, limit)
	if err != nil {
		h.Log.Error().Err(err).Str("topic", topic).Msg("recent events")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not list events", nil)
		return
	}

	views := make([]map[string]any, 0, len(evts))
	for _, e := range evts {
		views = append(views, map[string]any{
			"id":           e.ID,
			"topic":        e.Topic,
			"aggregate_id": e.AggregateID,
			"payload":      e.Payload,
			"created_at":   e.CreatedAt,
		})
	}
	common.Data(w, http.StatusOK, views)
}
