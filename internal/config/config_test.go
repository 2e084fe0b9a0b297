package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "8081"
  cors_allowed_origins:
    - https://app.example.com
database:
  url: postgres://file@localhost/subtrack
auth:
  jwt_secret: from-file
notifications:
  reminder_schedule: "0 7 * * *"
  worker:
    poll_interval: 2s
`)
	t.Setenv("SUBTRACK_DATABASE__URL", "postgres://env@localhost/subtrack")
	t.Setenv("SUBTRACK_NOTIFICATIONS__TELEGRAM__ENABLED", "true")
	t.Setenv("SUBTRACK_NOTIFICATIONS__TELEGRAM__BOT_TOKEN", "123:abc")
	t.Setenv("SUBTRACK_SERVER__METRICS_PORT", "9191")

	cfg, err := load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "9191", cfg.Server.MetricsPort)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "postgres://env@localhost/subtrack", cfg.Database.URL)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, "0 7 * * *", cfg.Notifications.ReminderSchedule)
	assert.Equal(t, 2*time.Second, cfg.Notifications.Worker.PollInterval)
	assert.True(t, cfg.Notifications.Telegram.Enabled)
	assert.Equal(t, "123:abc", cfg.Notifications.Telegram.BotToken)

	// untouched defaults survive
	assert.Equal(t, 50, cfg.Notifications.Worker.BatchSize)
	assert.Equal(t, 3, cfg.Notifications.Retry.MaxAttempts)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("SUBTRACK_DATABASE__URL", "postgres://localhost/subtrack")
	t.Setenv("SUBTRACK_AUTH__JWT_SECRET", "secret")
	t.Setenv("SUBTRACK_SERVER__CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("SUBTRACK_DATABASE__AUTO_MIGRATE", "false")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_MissingRequiredFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.URL = "postgres://localhost/subtrack"
		cfg.Auth.JWTSecret = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr []string
	}{
		{name: "valid", modify: func(*Config) {}},
		{
			name: "missing required",
			modify: func(c *Config) {
				c.Database.URL = ""
				c.Auth.JWTSecret = ""
			},
			wantErr: []string{"database.url is required", "auth.jwt_secret is required"},
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: []string{"log.level"},
		},
		{
			name:    "broker without url",
			modify:  func(c *Config) { c.Broker.Enabled = true },
			wantErr: []string{"broker.url is required"},
		},
		{
			name: "enabled senders without settings",
			modify: func(c *Config) {
				c.Notifications.Email.Enabled = true
				c.Notifications.Telegram.Enabled = true
				c.Notifications.Push.Enabled = true
			},
			wantErr: []string{"smtp_host", "bot_token", "gateway_url"},
		},
		{
			name: "disabled notifications skip checks",
			modify: func(c *Config) {
				c.Notifications.Enabled = false
				c.Notifications.Telegram.Enabled = true
			},
		},
		{
			name:    "bad currency",
			modify:  func(c *Config) { c.Notifications.Currency = "dollars" },
			wantErr: []string{"notifications.currency"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
