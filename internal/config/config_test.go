// Package config_test tests the configuration structure for the bot service.
package config_test

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prakasit008-sys/Pea-linebot/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[service]
bind_address = ":8080"
public_base_url = "https://bot.example.com"
command_prefix = "/say"
set_voice_prefix = "/voice"
max_text_chars = 500
admin_senders = ["admin-1", "admin-2"]
shutdown_seconds = 10

[provider]
base_url = "https://api.minimax.io"
api_key = "test-key"
group_id = "group-42"
model = "speech-01"
call_timeout_seconds = 30
max_attempts = 4
poll_interval_ms = 2000
job_deadline_seconds = 240
min_audio_bytes = 1024

[storage]
audio_dir = "/var/lib/bot/audio"
ttl_seconds = 3600
sweep_interval_seconds = 300
voice_state_path = "/var/lib/bot/voice.toml"
default_voice = "female-alto"

[nats]
url = "nats://127.0.0.1:4222"
synthesis_subject = "synthesis.requested"
max_concurrent = 4

[push]
url = "https://push.example.com/v2/bot/message/push"
token = "channel-token"

[paths]
base_logs_dir = "/var/log/bot"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Service.BindAddress)
	assert.Equal(t, "https://bot.example.com", cfg.Service.PublicBaseURL)
	assert.Equal(t, "/say", cfg.Service.CommandPrefix)
	assert.Equal(t, "/voice", cfg.Service.SetVoicePrefix)
	assert.Equal(t, 500, cfg.Service.MaxTextChars)
	assert.Equal(t, []string{"admin-1", "admin-2"}, cfg.Service.AdminSenders)
	assert.Equal(t, 10, cfg.Service.ShutdownSeconds)

	assert.Equal(t, "https://api.minimax.io", cfg.Provider.BaseURL)
	assert.Equal(t, "test-key", cfg.Provider.APIKey)
	assert.Equal(t, "group-42", cfg.Provider.GroupID)
	assert.Equal(t, "speech-01", cfg.Provider.Model)
	assert.Equal(t, 30, cfg.Provider.CallTimeoutSeconds)
	assert.Equal(t, 4, cfg.Provider.MaxAttempts)
	assert.Equal(t, 2000, cfg.Provider.PollIntervalMs)
	assert.Equal(t, 240, cfg.Provider.JobDeadlineSeconds)
	assert.Equal(t, 1024, cfg.Provider.MinAudioBytes)

	assert.Equal(t, "/var/lib/bot/audio", cfg.Storage.AudioDir)
	assert.Equal(t, 3600, cfg.Storage.TTLSeconds)
	assert.Equal(t, 300, cfg.Storage.SweepIntervalSeconds)
	assert.Equal(t, "/var/lib/bot/voice.toml", cfg.Storage.VoiceStatePath)
	assert.Equal(t, "female-alto", cfg.Storage.DefaultVoice)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "synthesis.requested", cfg.NATS.SynthesisSubject)
	assert.Equal(t, 4, cfg.NATS.MaxConcurrent)

	assert.Equal(t, "https://push.example.com/v2/bot/message/push", cfg.Push.URL)
	assert.Equal(t, "channel-token", cfg.Push.Token)

	assert.Equal(t, "/var/log/bot", cfg.Paths.BaseLogsDir)
}
