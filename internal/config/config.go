// Package config loads and validates the interview client configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration.
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Bridge        BridgeConfig        `yaml:"bridge"`
	Audio         AudioConfig         `yaml:"audio"`
	Interview     InterviewConfig     `yaml:"interview"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// BackendConfig addresses the interview HTTP backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds
}

// TranscriptionConfig addresses the streaming transcription channel.
type TranscriptionConfig struct {
	URL string `yaml:"url"`
}

// BridgeConfig addresses the live conversational agent.
type BridgeConfig struct {
	URL     string `yaml:"url"`
	AgentID string `yaml:"agent_id"`
}

// AudioConfig sets the capture shape.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// InterviewConfig sets interview behavior.
type InterviewConfig struct {
	QuestionCount      int     `yaml:"question_count"`
	GracePeriodSeconds float64 `yaml:"grace_period_seconds"`
	CustomPrompt       string  `yaml:"custom_prompt"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with working local defaults.
func Default() *Config {
	return &Config{
		Backend:       BackendConfig{BaseURL: "http://localhost:8000", Timeout: 60},
		Transcription: TranscriptionConfig{URL: "ws://localhost:8000/ws/transcribe"},
		Bridge:        BridgeConfig{URL: "wss://localhost:8000/ws/agent"},
		Audio:         AudioConfig{SampleRate: 16000, Channels: 1},
		Interview:     InterviewConfig{QuestionCount: 3, GracePeriodSeconds: 2},
		Metrics:       MetricsConfig{Enabled: false, Address: ":9090"},
		Logging:       LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration file, applies defaults for omitted fields,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks all sections.
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Interview.Validate(); err != nil {
		return fmt.Errorf("interview config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates backend configuration.
func (b *BackendConfig) Validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if b.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", b.Timeout)
	}

	return nil
}

// Validate validates transcription configuration.
func (t *TranscriptionConfig) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for the transcription channel, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	return nil
}

// Validate validates interview configuration.
func (i *InterviewConfig) Validate() error {
	if i.QuestionCount < 1 || i.QuestionCount > 10 {
		return fmt.Errorf("question_count must be between 1 and 10, got %d", i.QuestionCount)
	}

	if i.GracePeriodSeconds < 0 {
		return fmt.Errorf("grace_period_seconds cannot be negative, got %f", i.GracePeriodSeconds)
	}

	return nil
}

// Validate validates metrics configuration.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the backend timeout as a time.Duration.
func (b *BackendConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// GetGracePeriod returns the completion grace period as a time.Duration.
func (i *InterviewConfig) GetGracePeriod() time.Duration {
	return time.Duration(i.GracePeriodSeconds * float64(time.Second))
}
