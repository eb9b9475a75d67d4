// Package cors evaluates request origins against the configured allow-list
// and computes the response headers for them. Evaluation is pure; nothing
// here touches limiter or proxy state.
package cors

import (
	"net/http"
	"regexp"
	"strings"
)

// Origins matching this pattern are allowed whenever the allow-list carries
// any entry containing "localhost", so local frontends on arbitrary ports
// (including subdomains like app.localhost) work without enumerating them.
var localhostOrigin = regexp.MustCompile(`^http://([A-Za-z0-9-]+\.)?localhost(:\d+)?$`)

const (
	allowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowHeaders  = "authorization, x-client-info, apikey, content-type"
	exposeHeaders = "content-range"
	maxAge        = "86400"
)

type Policy struct {
	origins  map[string]struct{}
	wildcard bool
	// anyLocalhost is set when at least one configured entry contains
	// "localhost".
	anyLocalhost bool
}

// ParsePolicy builds a Policy from a comma-separated origin list. Entries
// are trimmed; empty entries are dropped; "*" allows every origin.
func ParsePolicy(allowList string) *Policy {
	p := &Policy{origins: make(map[string]struct{})}
	for _, entry := range strings.Split(allowList, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			p.wildcard = true
			continue
		}
		if strings.Contains(entry, "localhost") {
			p.anyLocalhost = true
		}
		p.origins[entry] = struct{}{}
	}
	return p
}

func (p *Policy) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.wildcard {
		return true
	}
	if _, ok := p.origins[origin]; ok {
		return true
	}
	return p.anyLocalhost && localhostOrigin.MatchString(origin)
}

// Headers returns the CORS headers for a request origin. The static
// method/header/expose/max-age headers are always present; the allow-origin
// and allow-credentials pair only when the origin is permitted.
func (p *Policy) Headers(origin string) http.Header {
	h := http.Header{}
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Expose-Headers", exposeHeaders)
	h.Set("Access-Control-Max-Age", maxAge)
	if p.Allows(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	return h
}
