package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/convo-widget/internal/observability/metrics"
	"github.com/wolfman30/convo-widget/internal/ratelimit"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

// RateLimit returns an HTTP middleware that rejects requests exceeding the
// limiter's window with 429 Too Many Requests. Limiter errors fail open.
func RateLimit(limiter ratelimit.Limiter, m *metrics.BookingMetrics, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}

			decision, err := limiter.Allow(r.Context(), "http:"+ip)
			if err != nil {
				logger.Warn("rate limiter error", "error", err, "remote_ip", ip)
				next.ServeHTTP(w, r)
				return
			}

			if decision.Limit > 0 {
				remaining := decision.Limit - decision.Count
				if remaining < 0 {
					remaining = 0
				}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
				if !decision.ResetsAt.IsZero() {
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetsAt.Unix(), 10))
				}
			}

			if !decision.Allowed {
				m.ObserveRateLimited()
				if !decision.ResetsAt.IsZero() {
					secs := int(time.Until(decision.ResetsAt).Seconds()) + 1
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
