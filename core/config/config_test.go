package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
telegram:
  token: "file-token"
  longpoll_timeout_seconds: 25
database:
  host: "localhost"
  port: "5432"
  user: "todolist"
  password: "secret"
  name: "todolist"
  sslmode: "disable"
  max_connections: 8
webapp:
  base_url: "https://todo.example.com/"
verify:
  listen: ":9000"
logging:
  level: "debug"
  format: "kv"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Telegram.Token != "file-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != "5432" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Database.MaxConnections != 8 {
		t.Fatalf("max_connections = %d", cfg.Database.MaxConnections)
	}
	// The trailing slash must be trimmed during normalization.
	if cfg.Webapp.BaseURL != "https://todo.example.com" {
		t.Fatalf("base_url = %q", cfg.Webapp.BaseURL)
	}
	if cfg.Verify.Listen != ":9000" {
		t.Fatalf("verify listen = %q", cfg.Verify.Listen)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("DB_PASSWORD", "env-secret")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Database.Password != "env-secret" {
		t.Fatalf("password = %q, want env override", cfg.Database.Password)
	}
}

func TestNormalizeRequiresTokenAndBaseURL(t *testing.T) {
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t"},
			Webapp:   WebappConfig{BaseURL: "todo.example.com"},
		}
	}

	cfg := base()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	// A bare host gets an https scheme.
	if cfg.Webapp.BaseURL != "https://todo.example.com" {
		t.Fatalf("base_url = %q", cfg.Webapp.BaseURL)
	}
	if cfg.Verify.Listen != ":8081" {
		t.Fatalf("verify listen default = %q", cfg.Verify.Listen)
	}

	cfg = base()
	cfg.Telegram.Token = ""
	if err := Normalize(cfg); err == nil {
		t.Fatal("missing token must fail")
	}

	cfg = base()
	cfg.Webapp.BaseURL = ""
	if err := Normalize(cfg); err == nil {
		t.Fatal("missing base_url must fail")
	}
}
