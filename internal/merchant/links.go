package merchant

import (
	"net/url"
	"strings"
)

// ClaimLinkBuilder builds the customer-facing claim URL embedded in the QR
// image. An explicit base URL override wins; otherwise the link points at
// the merchant tenant's subdomain of the user-app apex.
type ClaimLinkBuilder struct {
	BaseURL     string
	UserAppApex string
}

// ClaimURL returns the absolute claim link for a token code.
func (b ClaimLinkBuilder) ClaimURL(tenantSlug, code string) string {
	base := strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	if base == "" {
		slug := strings.TrimSpace(tenantSlug)
		if slug == "" || b.UserAppApex == "" {
			return ""
		}
		base = "https://" + slug + "." + b.UserAppApex
	}
	return base + "/claim?code=" + url.QueryEscape(code)
}
