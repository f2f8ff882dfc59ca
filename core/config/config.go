package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// PollRetryBackoffMS is the base delay before a failed getUpdates call is retried.
	PollRetryBackoffMS int `yaml:"poll_retry_backoff_ms" envconfig:"TELEGRAM_POLL_RETRY_BACKOFF_MS"`
}

// WebappConfig points the bot at the web application that shares its database.
type WebappConfig struct {
	// BaseURL is used to build deep links into the goals UI.
	BaseURL string `yaml:"base_url" envconfig:"WEBAPP_BASE_URL"`
}

// VerifyConfig configures the verification hand-off HTTP listener.
type VerifyConfig struct {
	Listen string `yaml:"listen" envconfig:"VERIFY_LISTEN"`
}

// DatabaseConfig holds database connection settings. This package stays a
// leaf, so the struct lives here and core/database consumes it.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// Config aggregates all application configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Webapp   WebappConfig   `yaml:"webapp"`
	Verify   VerifyConfig   `yaml:"verify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}
	if cfg.Telegram.PollRetryBackoffMS < 0 {
		return fmt.Errorf("telegram.poll_retry_backoff_ms must be >= 0")
	}

	base := strings.TrimSpace(cfg.Webapp.BaseURL)
	if base == "" {
		return fmt.Errorf("webapp.base_url is required")
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return fmt.Errorf("invalid webapp.base_url %q: %w", cfg.Webapp.BaseURL, err)
	}
	cfg.Webapp.BaseURL = strings.TrimRight(base, "/")

	if strings.TrimSpace(cfg.Verify.Listen) == "" {
		cfg.Verify.Listen = ":8081"
	}

	return nil
}
