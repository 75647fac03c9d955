// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/hubdesk/internal/shared"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	CatalogPath string // optional YAML override of the embedded troubleshooting tree
	// GRPCHealthPort enables the gRPC health listener when non-empty.
	GRPCHealthPort string
	RateLimit      RateLimitConfig
	Retention      RetentionConfig
	Retry          shared.RetryPolicy
	Transcript     TranscriptConfig
}

// RateLimitConfig bounds chat mutations per owner.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RetentionConfig controls the idle chat sweep. A zero TTL disables it.
type RetentionConfig struct {
	TTL      time.Duration
	Interval time.Duration
}

// TranscriptConfig controls NDJSON chat transcripts.
type TranscriptConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	// GlobalMaxSizeMB is the rotation size of the global file.
	GlobalMaxSizeMB int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/support.db"),
		CatalogPath:    getEnv("CATALOG_PATH", ""),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Retention: RetentionConfig{
			TTL:      getEnvDuration("CHAT_RETENTION", 0),
			Interval: getEnvDuration("RETENTION_INTERVAL", time.Hour),
		},
		Retry: shared.RetryPolicy{
			MaxRetries: getEnvInt("DB_MAX_RETRIES", 3),
			BaseDelay:  getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Transcript: TranscriptConfig{
			Enabled:         getEnvBool("TRANSCRIPT_ENABLED", true),
			Dir:             getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			GlobalEnabled:   getEnvBool("TRANSCRIPT_GLOBAL_ENABLED", false),
			GlobalPath:      getEnv("TRANSCRIPT_GLOBAL_PATH", "./data/transcripts/all.ndjson"),
			QueueSize:       queueSize,
			GlobalMaxSizeMB: getEnvInt("TRANSCRIPT_GLOBAL_MAX_SIZE_MB", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Retention.TTL < 0 {
		return fmt.Errorf("CHAT_RETENTION cannot be negative")
	}
	if c.Retention.TTL > 0 && c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be > 0 when CHAT_RETENTION is set")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("DB_MAX_RETRIES cannot be negative")
	}
	if c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.GlobalPath == "" {
		return fmt.Errorf("TRANSCRIPT_GLOBAL_PATH cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
