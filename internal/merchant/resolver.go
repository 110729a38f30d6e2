package merchant

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const slugContextKey contextKey = "merchant.slug"

// Resolver derives a merchant slug from the request host header.
//
// Rules, in order: a configured local-dev suffix ({slug}.lvh.me,
// {slug}.127.0.0.1.nip.io) yields the left-most label; the bare base apex
// yields no slug; a subdomain of the base apex yields the prefix before it;
// a preview-hosting suffix yields the left-most label; anything else
// resolves nothing.
type Resolver struct {
	BaseApex      string
	DevSuffixes   []string
	PreviewSuffix string
}

// NewResolver normalises the configured suffixes and returns a resolver.
func NewResolver(baseApex string, devSuffixes []string, previewSuffix string) *Resolver {
	normalized := make([]string, 0, len(devSuffixes))
	for _, s := range devSuffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		normalized = append(normalized, s)
	}
	return &Resolver{
		BaseApex:      strings.ToLower(strings.TrimSpace(baseApex)),
		DevSuffixes:   normalized,
		PreviewSuffix: strings.ToLower(strings.TrimSpace(previewSuffix)),
	}
}

// Middleware resolves the slug once per request and injects it into the
// context passed downstream, so later handlers never recompute it.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if slug, ok := r.ResolveSlug(req.Host); ok {
			req = req.WithContext(WithSlug(req.Context(), slug))
		}
		next.ServeHTTP(w, req)
	})
}

// ResolveSlug applies the host parsing rules and reports whether a slug was
// found. The port, if any, is ignored.
func (r *Resolver) ResolveSlug(hostHeader string) (string, bool) {
	host := strings.ToLower(hostWithoutPort(hostHeader))
	if host == "" {
		return "", false
	}

	for _, suffix := range r.DevSuffixes {
		if strings.HasSuffix(host, suffix) {
			return leftmostLabel(host), true
		}
	}

	if r.BaseApex != "" {
		if host == r.BaseApex {
			return "", false
		}
		if suffix := "." + r.BaseApex; strings.HasSuffix(host, suffix) {
			slug := strings.TrimSuffix(host, suffix)
			if slug != "" {
				return slug, true
			}
			return "", false
		}
	}

	if r.PreviewSuffix != "" && strings.HasSuffix(host, r.PreviewSuffix) {
		return leftmostLabel(host), true
	}

	return "", false
}

func leftmostLabel(host string) string {
	if idx := strings.Index(host, "."); idx > 0 {
		return host[:idx]
	}
	return host
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if strings.HasPrefix(hostport, "[") {
		if idx := strings.Index(hostport, "]"); idx != -1 {
			host := hostport[1:idx]
			if host != "" {
				return host
			}
		}
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	if idx := strings.Index(hostport, ":"); idx != -1 && strings.Count(hostport, ":") == 1 {
		return hostport[:idx]
	}
	return hostport
}

// WithSlug stores the resolved merchant slug inside the context.
func WithSlug(ctx context.Context, slug string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, slugContextKey, slug)
}

// SlugFromContext extracts the resolved merchant slug from the context if available.
func SlugFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	slug, ok := ctx.Value(slugContextKey).(string)
	if !ok {
		return "", false
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return "", false
	}
	return slug, true
}
