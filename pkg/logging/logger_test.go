package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wanderguide/pkg/config"
	"wanderguide/pkg/model"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")
	eventsLog := filepath.Join(tempDir, "events.log")

	// A previous run's log gets rotated
	if err := os.WriteFile(serverLog, []byte("old run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "DEBUG"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO"},
		Events:   config.LogSettings{Path: eventsLog},
	}

	prev := slog.Default()
	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() {
		cleanup()
		slog.SetDefault(prev)
		SetEventLogPath("")
	}()

	for _, p := range []string{serverLog, requestLog, serverLog + ".old"} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			t.Errorf("%s not created", filepath.Base(p))
		}
	}
	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}

	slog.Info("capture me")
	if got := GlobalLogCapture.GetLastLine(); !strings.Contains(got, "capture me") {
		t.Errorf("GetLastLine() = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"trace", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.log")
	SetEventLogPath(path)
	defer SetEventLogPath("")

	ts := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	LogEvent(&model.Event{Type: model.EventDispatchSent, SessionID: "s1", Title: "Charles Bridge", Summary: "120m", Timestamp: ts})
	LogEvent(&model.Event{Type: model.EventTierCleared, Title: "No POI nearby", Timestamp: ts})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read events log: %v", err)
	}
	want := "[2026-05-01 10:30:00] [dispatch_sent] (s1) Charles Bridge - 120m\n" +
		"[2026-05-01 10:30:00] [tier_cleared] No POI nearby\n"
	if string(data) != want {
		t.Errorf("events log =\n%s\nwant\n%s", data, want)
	}
	if got := GlobalEventCapture.GetLastLine(); got != "[2026-05-01 10:30:00] [tier_cleared] No POI nearby" {
		t.Errorf("captured event = %q", got)
	}
}

func TestTrace(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	prev := slog.Default()
	defer func() {
		slog.SetDefault(prev)
		SetEventLogPath("")
		traceEnabled.Store(false)
	}()

	for _, level := range []string{"DEBUG", "trace"} {
		dir := t.TempDir()
		cfg := &config.LogConfig{
			Server:   config.LogSettings{Path: filepath.Join(dir, "server.log"), Level: level},
			Requests: config.LogSettings{Path: filepath.Join(dir, "requests.log"), Level: "INFO"},
			Events:   config.LogSettings{Path: filepath.Join(dir, "events.log")},
		}
		cleanup, err := Init(cfg)
		if err != nil {
			t.Fatalf("Init(%s): %v", level, err)
		}
		Trace(logger, "sample skipped", "server_level", level)
		cleanup()
	}

	out := buf.String()
	if n := strings.Count(out, "sample skipped"); n != 1 {
		t.Errorf("got %d trace lines, want 1: %s", n, out)
	}
	if !strings.Contains(out, "server_level=trace") {
		t.Errorf("trace line missing at TRACE level: %s", out)
	}
}
