package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
database:
  url: postgres://file@localhost/agri
auth:
  jwt_secret: ` + testSecret + `
mediation:
  timeout: 2s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("APP_DATABASE_URL", "postgres://env@localhost/agri")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://env@localhost/agri" {
		t.Fatalf("expected env override, got %q", cfg.Database.URL)
	}
	if cfg.Mediation.Timeout != 2*time.Second {
		t.Fatalf("expected mediation timeout 2s, got %s", cfg.Mediation.Timeout)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.Broker.Exchange != "agrinetwork.events" {
		t.Fatalf("expected default exchange, got %q", cfg.Broker.Exchange)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Database:  DatabaseConfig{URL: "postgres://localhost/agri"},
		Auth:      AuthConfig{JWTSecret: testSecret},
		Mediation: MediationConfig{Timeout: time.Second},
		RateLimit: RateLimitConfig{RPS: 1, Burst: 1},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(*Config){
		"database.url": func(c *Config) { c.Database.URL = "" },
		"jwt_secret":   func(c *Config) { c.Auth.JWTSecret = "short" },
		"mediation":    func(c *Config) { c.Mediation.Timeout = 0 },
		"ratelimit":    func(c *Config) { c.RateLimit.Burst = 0 },
		"broker.batch": func(c *Config) { c.Broker.URL = "amqp://localhost"; c.Broker.BatchSize = 0 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if !strings.HasPrefix(err.Error(), "config: ") {
			t.Fatalf("%s: unexpected error format %q", name, err)
		}
	}
}
