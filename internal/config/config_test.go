package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.GenerateDeadline != 2500*time.Millisecond {
		t.Errorf("expected default generate deadline 2.5s, got %s", cfg.GenerateDeadline)
	}
	if cfg.DispatchMaxAttempts != 3 {
		t.Errorf("expected 3 dispatch attempts, got %d", cfg.DispatchMaxAttempts)
	}
	if cfg.DedupRetention != 60*24*time.Hour {
		t.Errorf("expected 60 day dedup retention, got %s", cfg.DedupRetention)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("GENERATE_DEADLINE", "1s")
	t.Setenv("HISTORY_WINDOW", "5")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %s", cfg.Port)
	}
	if cfg.GenerateDeadline != time.Second {
		t.Errorf("expected 1s deadline, got %s", cfg.GenerateDeadline)
	}
	if cfg.HistoryWindow != 5 {
		t.Errorf("expected history window 5, got %d", cfg.HistoryWindow)
	}
	if !cfg.UseMemoryQueue {
		t.Error("expected memory queue enabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
}
