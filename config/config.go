package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration assembled from file, environment and defaults.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Mediation MediationConfig `mapstructure:"mediation"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	MigrateOnRun bool   `mapstructure:"migrate_on_run"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	RequireToken bool          `mapstructure:"require_token"`
}

// MediationConfig points at the generative-AI verdict endpoint. An empty APIKey
// disables the client and every verdict request takes the human-escalation path.
type MediationConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BrokerConfig configures the outbox relay. The relay stays off when URL is empty.
type BrokerConfig struct {
	URL          string        `mapstructure:"url"`
	Exchange     string        `mapstructure:"exchange"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("mediation.api_key", "")
	v.SetDefault("broker.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.migrate_on_run", false)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.require_token", false)
	v.SetDefault("mediation.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("mediation.model", "gemini-1.5-flash")
	v.SetDefault("mediation.timeout", 8*time.Second)
	v.SetDefault("broker.exchange", "agrinetwork.events")
	v.SetDefault("broker.poll_interval", 3*time.Second)
	v.SetDefault("broker.batch_size", 50)
	v.SetDefault("ratelimit.rps", 50)
	v.SetDefault("ratelimit.burst", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configs/config.yaml (or the file named by path) when present, then
// overlays APP_* environment variables, e.g. APP_DATABASE_URL or APP_AUTH_JWT_SECRET.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("config: auth.jwt_secret must be at least 32 characters")
	}
	if c.Mediation.Timeout <= 0 {
		return errors.New("config: mediation.timeout must be positive")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("config: ratelimit.rps and ratelimit.burst must be positive")
	}
	if c.Broker.URL != "" && c.Broker.BatchSize <= 0 {
		return errors.New("config: broker.batch_size must be positive")
	}
	return nil
}
