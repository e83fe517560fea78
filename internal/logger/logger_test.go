package logger

import (
	"os"
	"strings"
	"testing"

	"kioskhelper/internal/config"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "logger_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	l := NewLogger(&config.Config{LogDirectory: tempDir})
	t.Cleanup(func() {
		l.Close()
		os.RemoveAll(tempDir)
	})
	return l, tempDir
}

func TestLogger_WritesPerLevelFiles(t *testing.T) {
	l, _ := newTestLogger(t)

	l.Info("tracked %d buttons", 3)
	l.Warning("frame dropped")
	l.Error("decode failed: %v", "boom")

	tests := []struct {
		level    Level
		contains string
	}{
		{LevelInfo, "tracked 3 buttons"},
		{LevelWarning, "frame dropped"},
		{LevelError, "decode failed: boom"},
	}

	for _, tt := range tests {
		data, err := os.ReadFile(l.Path(tt.level))
		if err != nil {
			t.Fatalf("Failed to read %s log: %v", tt.level, err)
		}
		if !strings.Contains(string(data), tt.contains) {
			t.Errorf("%s log = %q, expected to contain %q", tt.level, data, tt.contains)
		}
		if !strings.Contains(string(data), "logger_test.go") {
			t.Errorf("%s log should carry the caller file, got %q", tt.level, data)
		}
	}
}

func TestLogger_Clean(t *testing.T) {
	l, _ := newTestLogger(t)

	l.Warning("first warning")
	if err := l.Clean(LevelWarning); err != nil {
		t.Fatalf("Clean returned error: %v", err)
	}

	data, err := os.ReadFile(l.Path(LevelWarning))
	if err != nil {
		t.Fatalf("Failed to read warning log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("warning log should be empty after Clean, got %q", data)
	}

	l.Warning("second warning")
	data, _ = os.ReadFile(l.Path(LevelWarning))
	if !strings.Contains(string(data), "second warning") {
		t.Errorf("expected entries after Clean to be appended, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"info", true},
		{"warning", true},
		{"error", true},
		{"debug", false},
		{"", false},
	}

	for _, tt := range tests {
		if _, ok := ParseLevel(tt.input); ok != tt.ok {
			t.Errorf("ParseLevel(%q) ok = %v, expected %v", tt.input, ok, tt.ok)
		}
	}
}
