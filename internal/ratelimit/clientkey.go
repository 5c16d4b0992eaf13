package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

const UnknownClient = "unknown"

// ClientKey identifies the caller: first X-Forwarded-For hop, then
// X-Real-IP, CF-Connecting-IP, and finally the connection address.
func ClientKey(r *http.Request) string {
	if r == nil {
		return UnknownClient
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
	}
	if remote := strings.TrimSpace(r.RemoteAddr); remote != "" {
		if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
			return host
		}
		return remote
	}
	return UnknownClient
}
