package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownClient is the shared key for requests that carry no client address headers.
// All such callers share one bucket.
const UnknownClient = "unknown"

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// ClientKey derives the rate limit key from proxy headers: the first
// X-Forwarded-For entry, then X-Real-IP, then UnknownClient.
func ClientKey(h http.Header) string {
	if forwarded := h.Get(headerForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(h.Get(headerRealIP)); realIP != "" {
		return realIP
	}
	return UnknownClient
}
