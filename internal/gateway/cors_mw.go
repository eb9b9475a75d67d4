package gateway

import (
	"net/http"

	"github.com/jmilder/veil/internal/cors"
)

// CORS stamps the computed CORS headers on every response and terminates
// preflight requests with 204 before rate limiting or proxying run, so a
// browser's OPTIONS probe never consumes a client's budget.
func CORS(policy *cors.Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, vs := range policy.Headers(r.Header.Get("Origin")) {
				w.Header()[k] = vs
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
