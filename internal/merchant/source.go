package merchant

import (
	"context"
	"errors"
	"net/http"
)

// Finder captures the lookups a merchant source needs.
type Finder interface {
	BySlug(ctx context.Context, slug string) (Merchant, error)
	ByID(ctx context.Context, id string) (Merchant, error)
}

// Source supplies the merchant an issuance request is scoped to. The two
// implementations correspond to the service's deployment modes: a fixed
// merchant from configuration, or one resolved per request from the host
// slug. Both feed the same issuance code path.
type Source interface {
	Resolve(ctx context.Context) (Merchant, error)
}

// StaticSource always resolves the configured merchant id.
type StaticSource struct {
	Finder     Finder
	MerchantID string
}

// Resolve loads the configured merchant.
func (s StaticSource) Resolve(ctx context.Context) (Merchant, error) {
	if s.Finder == nil {
		return Merchant{}, errors.New("merchant: finder not configured")
	}
	return s.Finder.ByID(ctx, s.MerchantID)
}

// HostSource resolves the merchant from the slug the resolver middleware
// attached to the request context.
type HostSource struct {
	Finder Finder
}

// Resolve loads the merchant for the context slug, or reports ErrNoSlug.
func (s HostSource) Resolve(ctx context.Context) (Merchant, error) {
	if s.Finder == nil {
		return Merchant{}, errors.New("merchant: finder not configured")
	}
	slug, ok := SlugFromContext(ctx)
	if !ok {
		return Merchant{}, ErrNoSlug
	}
	return s.Finder.BySlug(ctx, slug)
}

// RequireSlug rejects requests whose host did not resolve to a merchant
// slug before the handler runs. Used on host-mode routes only.
func RequireSlug(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SlugFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"SLUG_REQUIRED","message":"merchant subdomain not provided"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
