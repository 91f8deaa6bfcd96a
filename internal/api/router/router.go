package router

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/convo-widget/internal/demo"
	httpmiddleware "github.com/wolfman30/convo-widget/internal/http/middleware"
	"github.com/wolfman30/convo-widget/internal/observability/metrics"
	"github.com/wolfman30/convo-widget/internal/ratelimit"
	"github.com/wolfman30/convo-widget/internal/webchat"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webchat            *webchat.Handler
	DemoCalendar       *demo.Calendar
	MetricsHandler     http.Handler
	Metrics            *metrics.BookingMetrics
	RateLimiter        ratelimit.Limiter
	CORSAllowedOrigins []string
	// Checks run on /health; any failure turns it into a 503.
	Checks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.Checks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webchat != nil {
		r.Route("/chat", func(chat chi.Router) {
			// The upgrade hijacks the connection, so it stays outside compression.
			chat.Get("/ws", cfg.Webchat.HandleWebSocket)
			chat.Group(func(api chi.Router) {
				api.Use(middleware.Compress(5))
				if cfg.RateLimiter != nil {
					api.Use(httpmiddleware.RateLimit(cfg.RateLimiter, cfg.Metrics, cfg.Logger))
				}
				api.Post("/message", cfg.Webchat.HandleMessage)
				api.Get("/slots", cfg.Webchat.HandleSlots)
			})
		})
	}

	if cfg.DemoCalendar != nil {
		r.Mount("/demo/calendar", cfg.DemoCalendar.Routes())
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				response["status"] = "degraded"
				response[name] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}
}
