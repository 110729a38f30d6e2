package notify

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-earn/internal/common"
	"github.com/noah-isme/backend-earn/internal/events"
)

// Handler exposes the operator-facing webhook endpoint CRUD.
type Handler struct {
	Store    *Store
	Validate *validator.Validate
	Log      zerolog.Logger
}

type createEndpointRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Secret string   `json:"secret" validate:"required,min=16"`
	Topics []string `json:"topics" validate:"required,min=1,dive,oneof=token.issued token.claimed"`
}

// Create handles POST /api/v1/admin/webhooks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid webhook payload", err.Error())
		return
	}

	ep, err := h.Store.CreateEndpoint(r.Context(), Endpoint{
		URL:    req.URL,
		Secret: req.Secret,
		Topics: req.Topics,
		Active: true,
	})
	if err != nil {
		h.Log.Error().Err(err).Msg("create webhook endpoint")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not create webhook", nil)
		return
	}

	common.Data(w, http.StatusCreated, endpointView(ep))
}

// List handles GET /api/v1/admin/webhooks.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.Store.ListEndpoints(r.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("list webhook endpoints")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not list webhooks", nil)
		return
	}

	views := make([]map[string]any, 0, len(endpoints))
	for _, ep := range endpoints {
		views = append(views, endpointView(ep))
	}
	common.Data(w, http.StatusOK, views)
}

// Delete handles DELETE /api/v1/admin/webhooks/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "no webhook with this id", nil)
			return
		}
		h.Log.Error().Err(err).Str("endpoint_id", id).Msg("delete webhook endpoint")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not delete webhook", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Topics handles GET /api/v1/admin/webhooks/topics.
func (h *Handler) Topics(w http.ResponseWriter, _ *http.Request) {
	common.Data(w, http.StatusOK, []string{events.TopicTokenIssued, events.TopicTokenClaimed})
}

// Secrets never leave the service once registered.
func endpointView(ep Endpoint) map[string]any {
	return map[string]any{
		"id":         ep.ID,
		"url":        ep.URL,
		"topics":     ep.Topics,
		"active":     ep.Active,
		"created_at": ep.CreatedAt,
	}
}
