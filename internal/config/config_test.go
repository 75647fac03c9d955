package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FRONTEND_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RateLimit.RequestsPerWindow != 30 || cfg.RateLimit.WindowDuration != time.Minute {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.Retention.TTL != 0 || cfg.Retention.Interval != time.Hour {
		t.Fatalf("unexpected retention: %+v", cfg.Retention)
	}
	if !cfg.Transcript.Enabled || cfg.Transcript.QueueSize != 1000 {
		t.Fatalf("unexpected transcript config: %+v", cfg.Transcript)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("empty FRONTEND_URL should mean development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FRONTEND_URL", "https://support.example.com")
	t.Setenv("CHAT_RETENTION", "72h")
	t.Setenv("RETENTION_INTERVAL", "10m")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("DB_RETRY_BASE_DELAY", "10ms")
	t.Setenv("TRANSCRIPT_GLOBAL_ENABLED", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" || cfg.RateLimit.RequestsPerWindow != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Retention.TTL != 72*time.Hour || cfg.Retention.Interval != 10*time.Minute {
		t.Fatalf("unexpected retention: %+v", cfg.Retention)
	}
	if cfg.Retry.BaseDelay != 10*time.Millisecond {
		t.Fatalf("unexpected retry delay: %v", cfg.Retry.BaseDelay)
	}
	if !cfg.Transcript.GlobalEnabled {
		t.Fatal("expected global transcript enabled")
	}
	if cfg.IsDevelopment() {
		t.Fatal("public FRONTEND_URL should not be development")
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://support.example.com" {
		t.Fatalf("unexpected origins: %v", got)
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:      "8080",
			DBPath:    "x.db",
			RateLimit: RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
			Transcript: TranscriptConfig{
				Dir: "d", GlobalPath: "g", QueueSize: 1,
			},
		}
	}

	cases := map[string]func(*Config){
		"PORT":                func(c *Config) { c.Port = "" },
		"DB_PATH":             func(c *Config) { c.DBPath = "" },
		"RATE_LIMIT_REQUESTS": func(c *Config) { c.RateLimit.RequestsPerWindow = 0 },
		"CHAT_RETENTION":      func(c *Config) { c.Retention.TTL = -time.Second },
		"RETENTION_INTERVAL":  func(c *Config) { c.Retention.TTL = time.Hour },
		"TRANSCRIPT_DIR":      func(c *Config) { c.Transcript.Dir = "" },
	}
	for want, mutate := range cases {
		c := base()
		mutate(c)
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("%s: expected validation error, got %v", want, err)
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
}
