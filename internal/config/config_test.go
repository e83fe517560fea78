package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ========================================
// Defaults
// ========================================

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.DetectorInputSize != 640 {
		t.Errorf("DetectorInputSize = %d, expected 640", cfg.DetectorInputSize)
	}
	if cfg.DetectInterval != 3 {
		t.Errorf("DetectInterval = %d, expected 3", cfg.DetectInterval)
	}
	if cfg.LabelTTL != 1500*time.Millisecond {
		t.Errorf("LabelTTL = %v, expected 1.5s", cfg.LabelTTL)
	}
	if cfg.TrackMaxAge != 30 {
		t.Errorf("TrackMaxAge = %d, expected 30", cfg.TrackMaxAge)
	}
	if cfg.MatchStrategy != StrategySynonym {
		t.Errorf("MatchStrategy = %q, expected %q", cfg.MatchStrategy, StrategySynonym)
	}
	if len(cfg.OCRLanguages) != 2 || cfg.OCRLanguages[0] != "kor" {
		t.Errorf("OCRLanguages = %v, expected [kor eng]", cfg.OCRLanguages)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

// ========================================
// Environment overrides
// ========================================

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DETECT_INTERVAL", "5")
	t.Setenv("LABEL_TTL", "2s")
	t.Setenv("OCR_TIMEOUT", "250")
	t.Setenv("MATCH_STRATEGY", "Lexical")
	t.Setenv("FILTER_ALLOW_CLASSES", "0, 2,x,5")
	t.Setenv("STREAM_ANNOTATED", "true")
	t.Setenv("OCR_LANGUAGES", "eng")

	cfg := Load()

	if cfg.DetectInterval != 5 {
		t.Errorf("DetectInterval = %d, expected 5", cfg.DetectInterval)
	}
	if cfg.LabelTTL != 2*time.Second {
		t.Errorf("LabelTTL = %v, expected 2s", cfg.LabelTTL)
	}
	if cfg.OCRTimeout != 250*time.Millisecond {
		t.Errorf("OCRTimeout = %v, expected 250ms", cfg.OCRTimeout)
	}
	if cfg.MatchStrategy != StrategyLexical {
		t.Errorf("MatchStrategy = %q, expected lexical", cfg.MatchStrategy)
	}
	expected := []int{0, 2, 5}
	if len(cfg.FilterAllowClasses) != len(expected) {
		t.Fatalf("FilterAllowClasses = %v, expected %v", cfg.FilterAllowClasses, expected)
	}
	for i := range expected {
		if cfg.FilterAllowClasses[i] != expected[i] {
			t.Errorf("FilterAllowClasses[%d] = %d, expected %d", i, cfg.FilterAllowClasses[i], expected[i])
		}
	}
	if !cfg.StreamAnnotated {
		t.Error("expected StreamAnnotated to be true")
	}
	if len(cfg.OCRLanguages) != 1 || cfg.OCRLanguages[0] != "eng" {
		t.Errorf("OCRLanguages = %v, expected [eng]", cfg.OCRLanguages)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "abc")
	t.Setenv("FILTER_NMS_IOU", "half")
	t.Setenv("LABEL_TTL", "soon")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, expected default 8080", cfg.Port)
	}
	if cfg.FilterNMSIoU != 0.50 {
		t.Errorf("FilterNMSIoU = %v, expected default 0.50", cfg.FilterNMSIoU)
	}
	if cfg.LabelTTL != 1500*time.Millisecond {
		t.Errorf("LabelTTL = %v, expected default", cfg.LabelTTL)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	if err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte("TRACK_MAX_AGE=12\nPORT=9090\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working dir: %v", err)
	}
	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	defer os.Chdir(wd)

	// Zmienna ustawiona w środowisku ma pierwszeństwo nad .env
	t.Setenv("PORT", "7070")
	os.Unsetenv("TRACK_MAX_AGE")
	defer os.Unsetenv("TRACK_MAX_AGE")

	cfg := Load()

	if cfg.TrackMaxAge != 12 {
		t.Errorf("TrackMaxAge = %d, expected 12 from .env", cfg.TrackMaxAge)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, expected 7070 from environment", cfg.Port)
	}
}

// ========================================
// Validation
// ========================================

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown strategy", func(c *Config) { c.MatchStrategy = "fuzzy" }},
		{"zero input size", func(c *Config) { c.DetectorInputSize = 0 }},
		{"zero interval", func(c *Config) { c.DetectInterval = 0 }},
		{"no ocr workers", func(c *Config) { c.OCRWorkers = 0 }},
		{"aspect inverted", func(c *Config) { c.FilterMinAspect = 3 }},
		{"area inverted", func(c *Config) { c.FilterMinRelArea = 0.9 }},
		{"iou out of range", func(c *Config) { c.FilterNMSIoU = 1.5 }},
		{"negative confidence", func(c *Config) { c.OCRMinConfidence = -0.1 }},
		{"udp port out of range", func(c *Config) { c.CameraUDPPort = 70000 }},
		{"no decision buffer", func(c *Config) { c.DecisionBufferLimit = 0 }},
		{"zero flush interval", func(c *Config) { c.DecisionFlushInterval = 0 }},
	}

	for _, tt := range tests {
		cfg := Load()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}
