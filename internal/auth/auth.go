// Package auth attaches backend credentials to outbound requests.
package auth

import "net/http"

const (
	apiKeyHeader = "apikey"
	authHeader   = "Authorization"
)

// Injector stamps the public (anon-tier) key onto requests bound for the
// backend. The privileged service key is deliberately not handled here; the
// gateway never forwards with it.
type Injector struct {
	key string
}

func NewInjector(anonKey string) *Injector {
	return &Injector{key: anonKey}
}

// Apply sets the apikey header unconditionally. The bearer Authorization
// header is only set when the caller sent none, so anonymous calls run at
// the anonymous tier while caller-supplied tokens pass through untouched.
func (i *Injector) Apply(h http.Header) {
	h.Set(apiKeyHeader, i.key)
	if h.Get(authHeader) == "" {
		h.Set(authHeader, "Bearer "+i.key)
	}
}
