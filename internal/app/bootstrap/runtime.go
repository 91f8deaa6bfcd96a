// Package bootstrap wires the optional runtime dependencies (Redis, S3) from
// configuration so the server binary stays small.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/convo-widget/internal/archive"
	appconfig "github.com/wolfman30/convo-widget/internal/config"
	"github.com/wolfman30/convo-widget/internal/ratelimit"
	"github.com/wolfman30/convo-widget/internal/widgetcfg"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

const (
	localSweepEvery = 5 * time.Minute
	localIdle       = 10 * time.Minute
)

// S3API covers what the config store and the transcript archive need.
type S3API interface {
	archive.S3API
	widgetcfg.S3API
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLimiter prefers the shared Redis limiter. Without Redis it returns an
// in-process limiter whose idle keys are swept until ctx ends.
func BuildLimiter(ctx context.Context, cfg *appconfig.Config, client *redis.Client, logger *logging.Logger) ratelimit.Limiter {
	if logger == nil {
		logger = logging.Default()
	}
	if client != nil {
		logger.Info("rate limiting backed by redis", "requests", cfg.RateLimitRequests, "window", cfg.RateLimitWindow.String())
		return ratelimit.NewRedisLimiter(client, cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	}
	local := ratelimit.NewLocalLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	go local.RunSweeper(ctx, localSweepEvery, localIdle)
	logger.Info("rate limiting in process", "requests", cfg.RateLimitRequests, "window", cfg.RateLimitWindow.String())
	return local
}

// DefaultLocation resolves DEFAULT_TIMEZONE, falling back to UTC.
func DefaultLocation(cfg *appconfig.Config, logger *logging.Logger) *time.Location {
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := time.LoadLocation(strings.TrimSpace(cfg.DefaultTimezone))
	if err != nil {
		logger.Warn("invalid default timezone, using UTC", "timezone", cfg.DefaultTimezone, "error", err)
		return time.UTC
	}
	return loc
}

// BuildConfigStore wires the widget config sources. s3Client may be nil.
func BuildConfigStore(cfg *appconfig.Config, s3Client S3API, loc *time.Location, logger *logging.Logger) *widgetcfg.Store {
	store := widgetcfg.NewStore(cfg.ClientConfigPath, cfg.ClientConfigBaseURL, loc, logger)
	if s3Client != nil && cfg.ClientConfigBucket != "" {
		store.WithBucket(s3Client, cfg.ClientConfigBucket, cfg.ClientConfigS3Prefix)
	}
	return store
}

// BuildArchive returns the transcript archive, or nil when no bucket is set.
func BuildArchive(cfg *appconfig.Config, s3Client S3API, logger *logging.Logger) *archive.Store {
	if s3Client == nil || cfg.TranscriptBucket == "" {
		return nil
	}
	return archive.NewStore(s3Client, cfg.TranscriptBucket, logger)
}
