package middleware

import (
	"net/http"
	"strings"
)

// CORSOptions configures the headers written by CORS.
type CORSOptions struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
}

// DefaultAllowHeaders are the request headers the dashboard sends to the proxy routes.
var DefaultAllowHeaders = []string{"Content-Type", "Authorization", "X-Target-IP", "X-Request-ID"}

// CORS writes permissive CORS headers and disables caching on every
// response. Preflight OPTIONS requests are answered here with an empty body
// and never reach rate limiting.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	origin := strings.TrimSpace(opts.AllowOrigin)
	if origin == "" {
		origin = "*"
	}
	methods := opts.AllowMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := opts.AllowHeaders
	if len(headers) == 0 {
		headers = DefaultAllowHeaders
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Cache-Control", "no-store")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
