package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid defaults",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "empty backend url",
			mutate:      func(c *Config) { c.Backend.BaseURL = "" },
			expectError: true,
			errorMsg:    "base_url",
		},
		{
			name:        "zero backend timeout",
			mutate:      func(c *Config) { c.Backend.Timeout = 0 },
			expectError: true,
			errorMsg:    "timeout",
		},
		{
			name:        "empty transcription url",
			mutate:      func(c *Config) { c.Transcription.URL = "" },
			expectError: true,
			errorMsg:    "url cannot be empty",
		},
		{
			name:        "wrong sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 44100 },
			expectError: true,
			errorMsg:    "sample_rate",
		},
		{
			name:        "stereo capture",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels",
		},
		{
			name:        "zero question count",
			mutate:      func(c *Config) { c.Interview.QuestionCount = 0 },
			expectError: true,
			errorMsg:    "question_count",
		},
		{
			name:        "excessive question count",
			mutate:      func(c *Config) { c.Interview.QuestionCount = 25 },
			expectError: true,
			errorMsg:    "question_count",
		},
		{
			name:        "negative grace period",
			mutate:      func(c *Config) { c.Interview.GracePeriodSeconds = -1 },
			expectError: true,
			errorMsg:    "grace_period_seconds",
		},
		{
			name: "metrics enabled without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			expectError: true,
			errorMsg:    "address",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected validation error containing %q, got nil", tt.errorMsg)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
backend:
  base_url: "http://interview.local:9000"
interview:
  question_count: 5
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.BaseURL != "http://interview.local:9000" {
		t.Errorf("base_url = %q, want overridden value", cfg.Backend.BaseURL)
	}
	if cfg.Interview.QuestionCount != 5 {
		t.Errorf("question_count = %d, want 5", cfg.Interview.QuestionCount)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample_rate default = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level default = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  sample_rate: 8000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for 8000 Hz sample rate, got nil")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if got := cfg.Backend.GetTimeoutDuration(); got != 60*time.Second {
		t.Errorf("backend timeout = %v, want 60s", got)
	}
	if got := cfg.Interview.GetGracePeriod(); got != 2*time.Second {
		t.Errorf("grace period = %v, want 2s", got)
	}
}
