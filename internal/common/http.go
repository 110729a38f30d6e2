package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP picks the originating address for rate-limit keys: the first
// parseable hop in X-Forwarded-For, then X-Real-IP, then the socket peer.
func ClientIP(r *http.Request) string {
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		hop = strings.TrimSpace(hop)
		if hop != "" && net.ParseIP(hop) != nil {
			return hop
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
