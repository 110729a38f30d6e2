package auth

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-earn/internal/common"
)

// RequireOperator rejects requests without a valid bearer token and stores
// the operator id on the context for downstream handlers.
func RequireOperator(tokens TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}
			operatorID, err := tokens.Parse(raw)
			if err != nil {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithOperatorID(r.Context(), operatorID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
