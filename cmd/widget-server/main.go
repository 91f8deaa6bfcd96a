package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/convo-widget/cmd/mainconfig"
	"github.com/wolfman30/convo-widget/internal/api/router"
	"github.com/wolfman30/convo-widget/internal/app/bootstrap"
	"github.com/wolfman30/convo-widget/internal/calendar"
	appconfig "github.com/wolfman30/convo-widget/internal/config"
	"github.com/wolfman30/convo-widget/internal/demo"
	"github.com/wolfman30/convo-widget/internal/observability/metrics"
	"github.com/wolfman30/convo-widget/internal/timeparse"
	"github.com/wolfman30/convo-widget/internal/webchat"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting convo widget server",
		"env", cfg.Env,
		"port", cfg.Port,
		"demo_calendar", cfg.DemoCalendar,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, closeFn, err := setup(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	// No read/write timeouts: they would also apply to hijacked WebSocket connections.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setup builds the HTTP handler and everything behind it. The returned func
// releases connections opened here.
func setup(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (http.Handler, func(), error) {
	m := metrics.NewBookingMetrics(reg)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	limiter := bootstrap.BuildLimiter(ctx, cfg, redisClient, logger)
	loc := bootstrap.DefaultLocation(cfg, logger)

	var s3Client bootstrap.S3API
	if cfg.UsesAWS() {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		s3Client = mainconfig.NewS3Client(awsCfg, cfg)
	}
	configs := bootstrap.BuildConfigStore(cfg, s3Client, loc, logger)

	calendarBaseURL := cfg.CalendarAPIBaseURL
	var demoCalendar *demo.Calendar
	if cfg.DemoCalendar {
		demoCalendar = demo.NewCalendar(logger).WithConfigs(configs)
		calendarBaseURL = "http://127.0.0.1:" + cfg.Port + "/demo/calendar"
		logger.Warn("demo calendar enabled; bookings are kept in memory", "base_url", calendarBaseURL)
	}
	calendarClient := calendar.NewClient(calendarBaseURL, logger,
		calendar.WithTimeout(cfg.CalendarAPITimeout),
		calendar.WithMetrics(m),
	)

	opts := webchat.Options{
		Configs:         configs,
		Calendar:        calendarClient,
		Slots:           calendarClient,
		Parser:          timeparse.New(),
		Limiter:         limiter,
		Metrics:         m,
		Logger:          logger,
		DefaultClientID: cfg.DefaultClientID,
		HistoryTurns:    cfg.HistoryTurns,
		SummaryTimeout:  cfg.SummaryTimeout,
	}
	if arch := bootstrap.BuildArchive(cfg, s3Client, logger); arch != nil {
		opts.Archiver = arch
		logger.Info("transcript archive enabled", "bucket", cfg.TranscriptBucket)
	}

	checks := map[string]router.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Webchat:            webchat.NewHandler(opts),
		DemoCalendar:       demoCalendar,
		MetricsHandler:     metricsHandler(reg),
		Metrics:            m,
		RateLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Checks:             checks,
	})

	closeFn := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	return handler, closeFn, nil
}

func metricsHandler(reg prometheus.Registerer) http.Handler {
	if g, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
