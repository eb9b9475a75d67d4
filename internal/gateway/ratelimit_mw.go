package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmilder/veil/internal/ratelimit"
)

type rateLimitError struct {
	Error string `json:"error"`
}

// RateLimit admits or rejects requests per client identity. Ops endpoints in
// skipPaths bypass the limiter entirely so health probes and metrics scrapes
// never consume a client's budget.
//
// The check-and-increment completes before the request reaches the proxy, so
// no limiter lock is ever held across upstream I/O.
func RateLimit(
	lim ratelimit.Limiter,
	policy ratelimit.Policy,
	skipPaths map[string]struct{},
	onLimited func(),
	onError func(),
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			identity := ClientIdentity(r)

			dec, err := lim.Allow(r.Context(), identity, policy, now)
			if err != nil {
				if onError != nil {
					onError()
				}
				WriteJSON(w, http.StatusInternalServerError, rateLimitError{Error: "Rate limiter failure"})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetUnixSec, 10))

			if !dec.Allowed {
				if onLimited != nil {
					onLimited()
				}
				retryAfter := dec.ResetUnixSec - now.Unix()
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				WriteJSON(w, http.StatusTooManyRequests, rateLimitError{Error: "Rate limit exceeded. Try again later."})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
