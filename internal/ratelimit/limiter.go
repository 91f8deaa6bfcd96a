// Package ratelimit throttles widget traffic per client IP.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/wolfman30/convo-widget/pkg/logging"
)

const (
	DefaultRequests = 30
	DefaultWindow   = 60 * time.Second
)

var tracer = otel.Tracer("widget.internal.ratelimit")

// Decision is the result of one Allow call.
type Decision struct {
	Allowed  bool
	Count    int
	Limit    int
	ResetsAt time.Time
	Degraded bool // store unavailable; request allowed without counting
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter is a fixed-window counter shared across replicas.
type RedisLimiter struct {
	redis  *redis.Client
	logger *logging.Logger
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter allows limit requests per key per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, logger *logging.Logger) *RedisLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	if limit <= 0 {
		limit = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{
		redis:  client,
		logger: logger,
		limit:  limit,
		window: window,
		prefix: "ratelimit:widget",
	}
}

// Allow counts the request. Redis failures fail open.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.allow")
	defer span.End()

	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	count, resetsAt, err := l.incrementAndGet(ctx, redisKey)
	if err != nil {
		l.logger.Error("rate limit check failed", "error", err, "key", redisKey)
		return Decision{Allowed: true, Limit: l.limit, Degraded: true}, nil
	}

	d := Decision{
		Allowed:  count <= l.limit,
		Count:    count,
		Limit:    l.limit,
		ResetsAt: resetsAt,
	}
	if !d.Allowed {
		span.SetAttributes(attribute.Bool("ratelimit.exceeded", true))
		l.logger.Warn("rate limit exceeded", "key", key, "count", count, "max", l.limit)
	}
	return d, nil
}

func (l *RedisLimiter) incrementAndGet(ctx context.Context, key string) (int, time.Time, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	}); err != nil {
		return 0, time.Time{}, err
	}

	remaining := ttl.Val()
	// A counter without a TTL would never reset: set it on the first hit and
	// again whenever an earlier EXPIRE was lost.
	if remaining < 0 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("ratelimit: expire %s: %w", key, err)
		}
		remaining = l.window
	}
	return int(incr.Val()), time.Now().Add(remaining), nil
}

// LocalLimiter keeps one token bucket per key in process memory. It is used
// when no Redis address is configured.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	limit    int
	every    rate.Limit
	now      func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows bursts of limit requests refilled over window.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		limit:    limit,
		every:    rate.Every(window / time.Duration(limit)),
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.every, l.limit)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	allowed := entry.limiter.AllowN(now, 1)
	used := l.limit - int(entry.limiter.TokensAt(now))
	return Decision{Allowed: allowed, Count: used, Limit: l.limit}, nil
}

// Sweep drops keys idle for longer than idle.
func (l *LocalLimiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep periodically until ctx is done.
func (l *LocalLimiter) RunSweeper(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(idle)
		}
	}
}
