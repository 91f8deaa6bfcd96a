package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/convo-widget/internal/calendar"
	"github.com/wolfman30/convo-widget/internal/demo"
	"github.com/wolfman30/convo-widget/internal/observability/metrics"
	"github.com/wolfman30/convo-widget/internal/ratelimit"
	"github.com/wolfman30/convo-widget/internal/timeparse"
	"github.com/wolfman30/convo-widget/internal/webchat"
	"github.com/wolfman30/convo-widget/internal/widgetcfg"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

func newTestRouter(t *testing.T, checks map[string]HealthCheck, limiter ratelimit.Limiter) http.Handler {
	t.Helper()

	logger := logging.New("error")
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	cal := calendar.NewClient("http://127.0.0.1:1", logger, calendar.WithTimeout(time.Second))

	chat := webchat.NewHandler(webchat.Options{
		Configs:  widgetcfg.NewStore("", "", time.UTC, logger),
		Calendar: cal,
		Slots:    cal,
		Parser:   timeparse.New(),
		Limiter:  limiter,
		Metrics:  m,
		Logger:   logger,
	})

	return New(&Config{
		Logger:             logger,
		Webchat:            chat,
		DemoCalendar:       demo.NewCalendar(logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Metrics:            m,
		RateLimiter:        limiter,
		CORSAllowedOrigins: []string{"*"},
		Checks:             checks,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterHealthReportsFailedCheck(t *testing.T) {
	router := newTestRouter(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "degraded" || resp["redis"] != "connection refused" {
		t.Errorf("unexpected health body %v", resp)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "widget_chat_active_sessions") {
		t.Errorf("expected widget metrics in output")
	}
}

func TestRouterChatMessageUnknownSession(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(`{"session_id":"missing","text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouterRateLimitsChatAPI(t *testing.T) {
	router := newTestRouter(t, nil, ratelimit.NewLocalLimiter(1, time.Minute))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(`{"session_id":"missing","text":"hi"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusNotFound || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected 404 then 429, got %v", codes)
	}
}

func TestRouterMountsDemoCalendar(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/demo/calendar/availability/acme?date=2025-03-03", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var body struct {
		Busy  []any    `json:"busy"`
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode availability: %v", err)
	}
	// Default 09:00-17:00 window with 40 minute meetings: 09:00 through 16:00.
	if len(body.Slots) != 15 {
		t.Errorf("expected 15 default-window slots, got %d", len(body.Slots))
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/chat/message", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
		t.Errorf("expected origin echoed, got %q", got)
	}
}
