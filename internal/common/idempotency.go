package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency guards write endpoints against duplicate submissions that
// reuse an Idempotency-Key within the TTL. The first request in claims the
// key; replays get 409 so the client knows the original was accepted.
type Idempotency struct {
	RDB *redis.Client
	TTL time.Duration
}

// Middleware enforces the key check. Requests without a key pass through.
func (i Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" || i.RDB == nil {
			next.ServeHTTP(w, r)
			return
		}

		sum := sha256.Sum256([]byte(key))
		fresh, err := i.RDB.SetNX(r.Context(), "idem:"+hex.EncodeToString(sum[:]), 1, i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "could not check idempotency key", nil)
			return
		}
		if !fresh {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "this request was already accepted", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
