package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-earn/internal/common"
)

// Handler exposes the operator auth endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Log      zerolog.Logger
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid login payload", err.Error())
		return
	}

	sess, err := h.Svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.AppErrorResponse(w, appErr)
			return
		}
		h.Log.Error().Err(err).Msg("operator login")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not log in", nil)
		return
	}

	common.Data(w, http.StatusOK, map[string]any{
		"access_token": sess.AccessToken,
		"operator": map[string]any{
			"id":    sess.Operator.ID,
			"email": sess.Operator.Email,
			"name":  sess.Operator.Name,
		},
	})
}

// Me handles GET /api/v1/auth/me for an authenticated operator.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := common.OperatorID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing operator identity", nil)
		return
	}

	op, err := h.Svc.Operators.ByID(r.Context(), operatorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator no longer exists", nil)
			return
		}
		h.Log.Error().Err(err).Msg("load operator")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not load operator", nil)
		return
	}

	common.Data(w, http.StatusOK, map[string]any{
		"id":    op.ID,
		"email": op.Email,
		"name":  op.Name,
	})
}
