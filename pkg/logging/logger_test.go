package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestWithOrg(t *testing.T) {
	logger := Default().WithOrg("org-1")
	if logger == nil {
		t.Fatal("expected logger")
	}
	logger.Info("tagged message", "key", "value")

	var nilLogger *Logger
	if nilLogger.WithOrg("org-2") == nil {
		t.Fatal("nil receiver should fall back to default logger")
	}
}
