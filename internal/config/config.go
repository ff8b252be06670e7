package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const DefaultJWTSecret = "dev_secret_key_change_this"

type Config struct {
	AppEnv     string `yaml:"app_env"`
	ServerAddr string `yaml:"server_addr"`
	LogLevel   string `yaml:"log_level"`

	JWTSecret            string `yaml:"jwt_secret"`
	TokenLifetimeMinutes int    `yaml:"token_lifetime_minutes"`
	BcryptCost           int    `yaml:"bcrypt_cost"`

	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	CORSOrigins    []string `yaml:"cors_origins"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed. When
	// empty the client ip is the socket peer.
	TrustedProxies []string `yaml:"trusted_proxies"`

	KafkaBrokers []string `yaml:"kafka_brokers"`

	ESURL      string `yaml:"es_url"`
	ESUser     string `yaml:"es_user"`
	ESPassword string `yaml:"es_password"`
	ESIndex    string `yaml:"es_index"`

	RedisURL                    string `yaml:"redis_url"`
	LoginRateLimitMax           int    `yaml:"login_rate_limit_max"`
	LoginRateLimitWindowSeconds int    `yaml:"login_rate_limit_window_seconds"`

	SentryDSN string `yaml:"sentry_dsn"`
}

func Defaults() Config {
	return Config{
		AppEnv:                      "development",
		ServerAddr:                  ":5000",
		LogLevel:                    "info",
		JWTSecret:                   DefaultJWTSecret,
		TokenLifetimeMinutes:        24 * 60,
		BcryptCost:                  bcrypt.DefaultCost,
		SQLitePath:                  "instance/notes.db",
		CORSOrigins:                 []string{"http://localhost:3000"},
		ESIndex:                     "notes",
		LoginRateLimitMax:           10,
		LoginRateLimitWindowSeconds: 60,
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE yaml
// overlay and the environment, in that order. A .env file in the working
// directory is loaded into the environment first.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("notice: .env file not found, using system environment", "error", err)
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.overlayEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	c.AppEnv = EnvDefault("APP_ENV", c.AppEnv)
	c.ServerAddr = EnvDefault("SERVER_ADDR", c.ServerAddr)
	c.LogLevel = EnvDefault("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = EnvDefault("JWT_SECRET", c.JWTSecret)
	c.DatabaseURL = EnvDefault("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = EnvDefault("SQLITE_PATH", c.SQLitePath)
	c.ESURL = EnvDefault("ES_URL", c.ESURL)
	c.ESUser = EnvDefault("ES_USER", c.ESUser)
	c.ESPassword = EnvDefault("ES_PASSWORD", c.ESPassword)
	c.ESIndex = EnvDefault("ES_INDEX", c.ESIndex)
	c.RedisURL = EnvDefault("REDIS_URL", c.RedisURL)
	c.SentryDSN = EnvDefault("SENTRY_DSN", c.SentryDSN)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = CSV(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.TrustedProxies = CSV(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = CSV(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TOKEN_LIFETIME_MINUTES", &c.TokenLifetimeMinutes},
		{"BCRYPT_COST", &c.BcryptCost},
		{"LOGIN_RATE_LIMIT_MAX", &c.LoginRateLimitMax},
		{"LOGIN_RATE_LIMIT_WINDOW_SECONDS", &c.LoginRateLimitWindowSeconds},
	}
	for _, it := range ints {
		n, err := EnvInt(it.key, *it.dst)
		if err != nil {
			return err
		}
		*it.dst = n
	}
	return nil
}

// Validate refuses configurations the server must not start with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is empty")
	}
	if c.IsProduction() && c.JWTSecret == DefaultJWTSecret {
		return errors.New("JWT_SECRET must be changed from the default in production")
	}
	if c.TokenLifetimeMinutes <= 0 {
		return fmt.Errorf("TOKEN_LIFETIME_MINUTES must be positive, got %d", c.TokenLifetimeMinutes)
	}
	if c.LoginRateLimitMax <= 0 || c.LoginRateLimitWindowSeconds <= 0 {
		return errors.New("login rate limit max and window must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func (c Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}

func (c Config) LoginRateWindow() time.Duration {
	return time.Duration(c.LoginRateLimitWindowSeconds) * time.Second
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
