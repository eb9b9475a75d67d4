package gateway

import (
	"net/http"
	"strings"
)

// UnknownIdentity is the shared bucket for callers whose forwarded address
// is missing. All such callers throttle together; accepted limitation.
const UnknownIdentity = "unknown"

// ClientIdentity derives the rate-limit key from the edge-injected
// X-Forwarded-For header (first entry, trimmed). The header is trusted as-is
// because the hosting edge controls it.
func ClientIdentity(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return UnknownIdentity
	}
	first, _, _ := strings.Cut(xff, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return UnknownIdentity
	}
	return first
}
