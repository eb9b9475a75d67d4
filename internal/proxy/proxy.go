// Package proxy relays admitted requests to the backend data API, rewriting
// the path and stamping credentials on the way out.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmilder/veil/internal/auth"
)

func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

type Config struct {
	Target      *url.URL      // backend base URL
	StripPrefix string        // e.g. "/proxy"; removed once when leading
	Timeout     time.Duration // bound on the whole upstream exchange
	Injector    *auth.Injector
	Logger      zerolog.Logger
	OnError     func() // called once per failed forward
}

type Forwarder struct {
	cfg Config
	rp  *httputil.ReverseProxy
}

func New(cfg Config, tr *http.Transport) *Forwarder {
	f := &Forwarder{cfg: cfg}
	f.rp = &httputil.ReverseProxy{
		Director:       f.direct,
		ModifyResponse: f.modifyResponse,
		ErrorHandler:   f.handleError,
		Transport:      tr,
	}
	return f
}

// RewritePath removes one leading prefix from path. Paths that do not start
// with the prefix pass through unchanged.
func RewritePath(path, prefix string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if path == prefix {
		return "/"
	}
	if strings.HasPrefix(path, prefix+"/") {
		return strings.TrimPrefix(path, prefix)
	}
	return path
}

func (f *Forwarder) direct(req *http.Request) {
	inboundHost := req.Host

	req.URL.Scheme = f.cfg.Target.Scheme
	req.URL.Host = f.cfg.Target.Host
	req.URL.Path = strings.TrimSuffix(f.cfg.Target.Path, "/") + RewritePath(req.URL.Path, f.cfg.StripPrefix)
	// query string carries over verbatim on req.URL.RawQuery
	req.Host = f.cfg.Target.Host

	f.cfg.Injector.Apply(req.Header)

	// read-only methods forward without a body
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		req.Body = nil
		req.ContentLength = 0
		req.Header.Del("Content-Length")
	}

	req.Header.Set("X-Forwarded-Host", inboundHost)
	req.Header.Set("X-Forwarded-Proto", "http")
}

// modifyResponse drops the backend's own CORS headers; the gateway computed
// its own before the proxy ran and they must win without duplication.
func (f *Forwarder) modifyResponse(resp *http.Response) error {
	for k := range resp.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), "Access-Control-") {
			resp.Header.Del(k)
		}
	}
	return nil
}

func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		// caller went away; nothing left to answer
		f.cfg.Logger.Debug().Str("path", r.URL.Path).Msg("client canceled during forward")
		return
	}

	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "upstream timeout: " + msg
	}

	f.cfg.Logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("forward failed")
	if f.cfg.OnError != nil {
		f.cfg.OnError()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{Error: "Proxy error", Message: msg})
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.cfg.Timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), f.cfg.Timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}
	f.rp.ServeHTTP(w, r)
}
