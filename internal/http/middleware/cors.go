package middleware

import (
	"net/http"
	"strings"
)

const (
	widgetAllowHeaders  = "Content-Type, X-Request-ID"
	widgetAllowMethods  = "GET, POST, OPTIONS"
	widgetExposeHeaders = "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After"
	preflightMaxAge     = "600"
)

// embedOrigins holds the sites allowed to embed the widget. Entries are exact
// origins, "*" for any origin, or "https://*.example.com" for every subdomain
// of a customer site.
type embedOrigins struct {
	any       bool
	exact     map[string]struct{}
	wildcards []string // "scheme://|.domain"
}

func parseEmbedOrigins(origins []string) embedOrigins {
	o := embedOrigins{exact: map[string]struct{}{}}
	for _, raw := range origins {
		origin := strings.TrimSuffix(strings.TrimSpace(raw), "/")
		switch {
		case origin == "":
		case origin == "*":
			o.any = true
		case strings.Contains(origin, "://*."):
			scheme, domain, _ := strings.Cut(origin, "://*")
			o.wildcards = append(o.wildcards, scheme+"://|"+domain)
		default:
			o.exact[origin] = struct{}{}
		}
	}
	return o
}

func (o embedOrigins) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if o.any {
		return true
	}
	if _, ok := o.exact[origin]; ok {
		return true
	}
	for _, w := range o.wildcards {
		prefix, suffix, _ := strings.Cut(w, "|")
		if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) && len(origin) > len(prefix)+len(suffix) {
			return true
		}
	}
	return false
}

// CORS lets pages on the allowed origins call the chat endpoints and read the
// rate-limit headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := parseEmbedOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			h := w.Header()
			if origins.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", widgetAllowHeaders)
				h.Set("Access-Control-Allow-Methods", widgetAllowMethods)
				h.Set("Access-Control-Expose-Headers", widgetExposeHeaders)
				h.Set("Access-Control-Max-Age", preflightMaxAge)
			}

			if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
