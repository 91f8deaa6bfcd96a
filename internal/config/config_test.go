package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "CALENDAR_API_BASE_URL", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "HISTORY_TURNS", "CORS_ALLOWED_ORIGINS", "DEMO_CALENDAR"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.CalendarAPIBaseURL != "https://two47convobot.onrender.com" {
		t.Fatalf("unexpected calendar base url %s", cfg.CalendarAPIBaseURL)
	}
	if cfg.RateLimitRequests != 30 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("expected 30 requests per minute, got %d per %s", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.HistoryTurns != 20 {
		t.Fatalf("expected 20 history turns, got %d", cfg.HistoryTurns)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard CORS default, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.DemoCalendar {
		t.Fatalf("expected demo calendar disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("CALENDAR_API_BASE_URL", "https://calendar.example.com/")
	t.Setenv("CALENDAR_API_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")
	t.Setenv("HISTORY_TURNS", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("DEMO_CALENDAR", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.CalendarAPIBaseURL != "https://calendar.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.CalendarAPIBaseURL)
	}
	if cfg.CalendarAPITimeout != 3*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.CalendarAPITimeout)
	}
	if cfg.RateLimitRequests != 5 || cfg.RateLimitWindow != 10*time.Second {
		t.Fatalf("expected rate limit override, got %d per %s", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.HistoryTurns != 8 {
		t.Fatalf("expected history override, got %d", cfg.HistoryTurns)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.DemoCalendar {
		t.Fatalf("expected demo calendar enabled")
	}
}

func TestUsesAWS(t *testing.T) {
	t.Setenv("CLIENT_CONFIG_S3_BUCKET", "")
	t.Setenv("TRANSCRIPT_ARCHIVE_BUCKET", "")
	if Load().UsesAWS() {
		t.Fatalf("expected AWS unused without buckets")
	}

	t.Setenv("TRANSCRIPT_ARCHIVE_BUCKET", "widget-transcripts")
	cfg := Load()
	if !cfg.UsesAWS() {
		t.Fatalf("expected AWS in use with a transcript bucket")
	}
	if cfg.ClientConfigS3Prefix != "configs" {
		t.Fatalf("expected default prefix, got %s", cfg.ClientConfigS3Prefix)
	}
}
