package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Remote calendar service the negotiator books against.
	CalendarAPIBaseURL string
	CalendarAPITimeout time.Duration
	// DemoCalendar mounts the in-memory calendar API and points the client at it.
	DemoCalendar bool

	// Per-client widget configuration. Sources are tried in order: local
	// directory, S3 bucket, remote base URL.
	ClientConfigPath     string
	ClientConfigBucket   string
	ClientConfigS3Prefix string
	ClientConfigBaseURL  string
	DefaultClientID     string
	DefaultTimezone     string

	// AWS is only touched when one of the buckets is set.
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	// TranscriptBucket receives scrubbed transcripts at session close.
	TranscriptBucket string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	RateLimitRequests int
	RateLimitWindow   time.Duration

	HistoryTurns       int
	SummaryTimeout     time.Duration
	CORSAllowedOrigins []string
}

// UsesAWS reports whether any S3 integration is configured.
func (c *Config) UsesAWS() bool {
	return c.ClientConfigBucket != "" || c.TranscriptBucket != ""
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CalendarAPIBaseURL: strings.TrimRight(getEnv("CALENDAR_API_BASE_URL", "https://two47convobot.onrender.com"), "/"),
		CalendarAPITimeout: getEnvAsDuration("CALENDAR_API_TIMEOUT", 15*time.Second),
		DemoCalendar:       getEnvAsBool("DEMO_CALENDAR", false),

		ClientConfigPath:     getEnv("CLIENT_CONFIG_PATH", ""),
		ClientConfigBucket:   getEnv("CLIENT_CONFIG_S3_BUCKET", ""),
		ClientConfigS3Prefix: getEnv("CLIENT_CONFIG_S3_PREFIX", "configs"),
		ClientConfigBaseURL:  strings.TrimRight(getEnv("CLIENT_CONFIG_BASE_URL", ""), "/"),
		DefaultClientID:      getEnv("DEFAULT_CLIENT_ID", "default"),
		DefaultTimezone:      getEnv("DEFAULT_TIMEZONE", "UTC"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		TranscriptBucket:    getEnv("TRANSCRIPT_ARCHIVE_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),

		HistoryTurns:       getEnvAsInt("HISTORY_TURNS", 20),
		SummaryTimeout:     getEnvAsDuration("SUMMARY_TIMEOUT", 5*time.Second),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
