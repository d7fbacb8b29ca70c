package log

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLevel(t *testing.T) {
	l, closer := New(Options{Level: "warn"})
	if closer != nil {
		t.Error("closer should be nil without a file")
	}
	if l.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !l.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoframe.log")

	l, closer := New(Options{Level: "info", File: path, JSON: true})
	if closer == nil {
		t.Fatal("closer should be set with a file")
	}
	l.Info("session started", "session", "abc")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"session":"abc"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestInitSetsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	Init("debug")
	defer Close()

	if L() != slog.Default() {
		t.Error("Init should install the logger as slog default")
	}
	if !With("component", "test").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled")
	}
}
