// Package config provides the configuration structure for the bot service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// ServiceConfig holds the HTTP surface and command settings.
type ServiceConfig struct {
	BindAddress     string   `toml:"bind_address"`
	PublicBaseURL   string   `toml:"public_base_url"`
	CommandPrefix   string   `toml:"command_prefix"`
	SetVoicePrefix  string   `toml:"set_voice_prefix"`
	MaxTextChars    int      `toml:"max_text_chars"`
	AdminSenders    []string `toml:"admin_senders"`
	ShutdownSeconds int      `toml:"shutdown_seconds"`
}

// ProviderConfig holds the synthesis provider settings.
type ProviderConfig struct {
	BaseURL            string `toml:"base_url"`
	APIKey             string `toml:"api_key"`
	GroupID            string `toml:"group_id"`
	Model              string `toml:"model"`
	CallTimeoutSeconds int    `toml:"call_timeout_seconds"`
	MaxAttempts        int    `toml:"max_attempts"`
	PollIntervalMs     int    `toml:"poll_interval_ms"`
	JobDeadlineSeconds int    `toml:"job_deadline_seconds"`
	MinAudioBytes      int    `toml:"min_audio_bytes"`
}

// StorageConfig holds the artifact store and voice state settings.
type StorageConfig struct {
	AudioDir             string `toml:"audio_dir"`
	TTLSeconds           int    `toml:"ttl_seconds"`
	SweepIntervalSeconds int    `toml:"sweep_interval_seconds"`
	VoiceStatePath       string `toml:"voice_state_path"`
	DefaultVoice         string `toml:"default_voice"`
}

// NATSConfig holds the job queue settings.
type NATSConfig struct {
	URL              string `toml:"url"`
	SynthesisSubject string `toml:"synthesis_subject"`
	MaxConcurrent    int    `toml:"max_concurrent"`
}

// PushConfig holds the outbound notification settings.
type PushConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Provider ProviderConfig `toml:"provider"`
	Storage  StorageConfig  `toml:"storage"`
	NATS     NATSConfig     `toml:"nats"`
	Push     PushConfig     `toml:"push"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the bot service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
