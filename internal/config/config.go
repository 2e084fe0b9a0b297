// Package config loads application configuration from defaults, an optional
// YAML file and SUBTRACK_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "SUBTRACK_"
	envDelimiter      = "__"
	defaultConfigPath = "config.yaml"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	Auth          AuthConfig          `koanf:"auth"`
	Broker        BrokerConfig        `koanf:"broker"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Host               string        `koanf:"host"`
	Port               string        `koanf:"port"`
	MetricsPort        string        `koanf:"metrics_port"`
	ReadTimeout        time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout  time.Duration `koanf:"read_header_timeout"`
	WriteTimeout       time.Duration `koanf:"write_timeout"`
	IdleTimeout        time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	Audience  string        `koanf:"audience"`
	Leeway    time.Duration `koanf:"leeway"`
}

// BrokerConfig configures subscription lifecycle event publishing.
type BrokerConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

// NotificationsConfig configures reminders and their senders.
type NotificationsConfig struct {
	Enabled          bool           `koanf:"enabled"`
	Currency         string         `koanf:"currency"`
	ReminderSchedule string         `koanf:"reminder_schedule"`
	CleanupSchedule  string         `koanf:"cleanup_schedule"`
	Retention        time.Duration  `koanf:"retention"`
	Worker           WorkerConfig   `koanf:"worker"`
	Retry            RetryConfig    `koanf:"retry"`
	Email            EmailConfig    `koanf:"email"`
	Telegram         TelegramConfig `koanf:"telegram"`
	Push             PushConfig     `koanf:"push"`
}

// WorkerConfig configures the queue worker pool.
type WorkerConfig struct {
	NumWorkers   int           `koanf:"num_workers"`
	BatchSize    int           `koanf:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

// RetryConfig configures delivery retries.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// EmailConfig configures the SMTP sender.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// TelegramConfig configures the Telegram Bot API sender.
type TelegramConfig struct {
	Enabled   bool    `koanf:"enabled"`
	BotToken  string  `koanf:"bot_token"`
	RateLimit float64 `koanf:"rate_limit"`
}

// PushConfig configures the push gateway sender.
type PushConfig struct {
	Enabled    bool          `koanf:"enabled"`
	GatewayURL string        `koanf:"gateway_url"`
	APIKey     string        `koanf:"api_key"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Leeway: 30 * time.Second,
		},
		Broker: BrokerConfig{
			Exchange: "subtrack.events",
		},
		Notifications: NotificationsConfig{
			Enabled:          true,
			Currency:         "USD",
			ReminderSchedule: "0 8 * * *",
			CleanupSchedule:  "30 3 * * *",
			Retention:        90 * 24 * time.Hour,
			Worker: WorkerConfig{
				NumWorkers:   2,
				BatchSize:    50,
				PollInterval: 5 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    time.Second,
				MaxBackoff:        5 * time.Minute,
				BackoffMultiplier: 2.0,
			},
			Email: EmailConfig{
				SMTPPort: 587,
			},
			Telegram: TelegramConfig{
				RateLimit: 25,
			},
			Push: PushConfig{
				Timeout: 10 * time.Second,
			},
		},
	}
}

// Load reads configuration. The YAML file comes from CONFIG_PATH, or
// config.yaml in the working directory when present.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	required := path != ""
	if path == "" {
		path = defaultConfigPath
	}
	return load(path, required)
}

func load(path string, required bool) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil || required {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			key = strings.ReplaceAll(key, envDelimiter, ".")
			if strings.HasSuffix(key, "cors_allowed_origins") {
				return key, splitList(value)
			}
			return key, value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port == "" {
		add("server.port is required")
	}
	if c.Database.URL == "" {
		add("database.url is required")
	}
	if c.Database.MaxOpenConns < 1 {
		add("database.max_open_conns must be positive")
	}
	if c.Auth.JWTSecret == "" {
		add("auth.jwt_secret is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		add("log.format must be json or text")
	}

	if c.Broker.Enabled {
		if c.Broker.URL == "" {
			add("broker.url is required when broker is enabled")
		}
		if c.Broker.Exchange == "" {
			add("broker.exchange is required when broker is enabled")
		}
	}

	n := c.Notifications
	if n.Enabled {
		if len(n.Currency) != 3 {
			add("notifications.currency must be an ISO 4217 code")
		}
		if n.ReminderSchedule == "" {
			add("notifications.reminder_schedule is required")
		}
		if n.Worker.NumWorkers < 1 || n.Worker.BatchSize < 1 || n.Worker.PollInterval <= 0 {
			add("notifications.worker values must be positive")
		}
		if n.Retry.MaxAttempts < 1 {
			add("notifications.retry.max_attempts must be at least 1")
		}
		if n.Retry.BackoffMultiplier < 1 {
			add("notifications.retry.backoff_multiplier must be at least 1")
		}
		if n.Email.Enabled && (n.Email.SMTPHost == "" || n.Email.FromAddress == "") {
			add("notifications.email requires smtp_host and from_address")
		}
		if n.Telegram.Enabled && n.Telegram.BotToken == "" {
			add("notifications.telegram.bot_token is required when telegram is enabled")
		}
		if n.Push.Enabled && n.Push.GatewayURL == "" {
			add("notifications.push.gateway_url is required when push is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
