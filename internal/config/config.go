// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string         `yaml:"env"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	DrGreen  DrGreenConfig  `yaml:"drgreen"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins      []string      `yaml:"allowOrigins"`
}

type DatabaseConfig struct {
	// URL selects Postgres; empty means the in-memory store.
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type RedisConfig struct {
	// URL enables the Redis-backed delivery feed.
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Mode         string `yaml:"mode"` // dev, hmac, rsa
	HMACSecret   string `yaml:"hmacSecret"`
	RSAPublicKey string `yaml:"rsaPublicKey"`
	Issuer       string `yaml:"issuer"`
	Audience     string `yaml:"audience"`
}

type WebhookConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
	UserAgent   string        `yaml:"userAgent"`
}

type DrGreenConfig struct {
	BaseURL             string        `yaml:"baseURL"`
	Timeout             time.Duration `yaml:"timeout"`
	RateLimit           float64       `yaml:"rateLimit"`
	Burst               int           `yaml:"burst"`
	BreakerEnabled      bool          `yaml:"breakerEnabled"`
	BreakerMinRequests  int           `yaml:"breakerMinRequests"`
	BreakerFailureRatio float64       `yaml:"breakerFailureRatio"`
	BreakerOpenTimeout  time.Duration `yaml:"breakerOpenTimeout"`
}

type SecretsConfig struct {
	// EncryptionKey is a base64 32-byte AES key for credentials at rest.
	EncryptionKey string `yaml:"encryptionKey"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

func Default() Config {
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Database: DatabaseConfig{Migrate: true},
		Auth:     AuthConfig{Mode: "dev"},
		Webhooks: WebhookConfig{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			UserAgent:   "Storefront-Webhooks/1.0",
		},
		DrGreen: DrGreenConfig{
			BaseURL:             "http://localhost:8090/api/v1",
			Timeout:             15 * time.Second,
			Burst:               5,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.5,
			BreakerOpenTimeout:  30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. CONFIG_FILE, when set, names a YAML file
// applied over the defaults; environment variables win over both.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
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

func (c *Config) applyEnv() {
	c.Env = getEnv("APP_ENV", c.Env)

	c.HTTP.Port = getEnvInt("PORT", c.HTTP.Port)
	c.HTTP.ReadHeaderTimeout = getEnvDuration("HTTP_READ_HEADER_TIMEOUT", c.HTTP.ReadHeaderTimeout)
	c.HTTP.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout)
	c.HTTP.AllowOrigins = getEnvSlice("ALLOW_ORIGINS", c.HTTP.AllowOrigins)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Migrate = getEnvBool("DB_MIGRATE", c.Database.Migrate)
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)

	c.Auth.Mode = getEnv("AUTH_MODE", c.Auth.Mode)
	c.Auth.HMACSecret = getEnv("JWT_HS256_SECRET", c.Auth.HMACSecret)
	c.Auth.RSAPublicKey = getEnv("JWT_RSA_PUBLIC_KEY", c.Auth.RSAPublicKey)
	c.Auth.Issuer = getEnv("JWT_ISSUER", c.Auth.Issuer)
	c.Auth.Audience = getEnv("JWT_AUDIENCE", c.Auth.Audience)

	c.Webhooks.Timeout = getEnvDuration("WEBHOOK_TIMEOUT", c.Webhooks.Timeout)
	c.Webhooks.MaxAttempts = getEnvInt("WEBHOOK_MAX_ATTEMPTS", c.Webhooks.MaxAttempts)
	c.Webhooks.UserAgent = getEnv("WEBHOOK_USER_AGENT", c.Webhooks.UserAgent)

	c.DrGreen.BaseURL = getEnv("DRGREEN_API_URL", c.DrGreen.BaseURL)
	c.DrGreen.Timeout = getEnvDuration("DRGREEN_TIMEOUT", c.DrGreen.Timeout)
	c.DrGreen.RateLimit = getEnvFloat("DRGREEN_RATE_RPS", c.DrGreen.RateLimit)
	c.DrGreen.Burst = getEnvInt("DRGREEN_RATE_BURST", c.DrGreen.Burst)
	c.DrGreen.BreakerEnabled = getEnvBool("DRGREEN_BREAKER_ENABLED", c.DrGreen.BreakerEnabled)
	c.DrGreen.BreakerMinRequests = getEnvInt("DRGREEN_BREAKER_MIN_REQUESTS", c.DrGreen.BreakerMinRequests)
	c.DrGreen.BreakerFailureRatio = getEnvFloat("DRGREEN_BREAKER_FAILURE_RATIO", c.DrGreen.BreakerFailureRatio)
	c.DrGreen.BreakerOpenTimeout = getEnvDuration("DRGREEN_BREAKER_OPEN_TIMEOUT", c.DrGreen.BreakerOpenTimeout)

	c.Secrets.EncryptionKey = getEnv("CREDENTIALS_ENCRYPTION_KEY", c.Secrets.EncryptionKey)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http port %d out of range", c.HTTP.Port))
	}
	switch c.Auth.Mode {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth mode hmac requires JWT_HS256_SECRET"))
		}
	case "rsa":
		if c.Auth.RSAPublicKey == "" {
			errs = append(errs, errors.New("auth mode rsa requires JWT_RSA_PUBLIC_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", c.Auth.Mode))
	}
	if c.Webhooks.MaxAttempts < 1 {
		errs = append(errs, errors.New("webhook max attempts must be at least 1"))
	}
	if c.DrGreen.BaseURL == "" {
		errs = append(errs, errors.New("DRGREEN_API_URL is required"))
	}
	if c.DrGreen.BreakerFailureRatio < 0 || c.DrGreen.BreakerFailureRatio > 1 {
		errs = append(errs, errors.New("breaker failure ratio must be within [0,1]"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool { return c.Env == "production" }

func (c Config) Addr() string { return ":" + strconv.Itoa(c.HTTP.Port) }

// Redacted is a loggable view with secrets reduced to presence flags.
func (c Config) Redacted() map[string]any {
	return map[string]any{
		"env":                c.Env,
		"port":               c.HTTP.Port,
		"authMode":           c.Auth.Mode,
		"hasDatabaseURL":     c.Database.URL != "",
		"hasRedisURL":        c.Redis.URL != "",
		"hasEncryptionKey":   c.Secrets.EncryptionKey != "",
		"webhookTimeout":     c.Webhooks.Timeout.String(),
		"webhookMaxAttempts": c.Webhooks.MaxAttempts,
		"drgreenBaseURL":     c.DrGreen.BaseURL,
		"drgreenRateRPS":     c.DrGreen.RateLimit,
		"drgreenBreaker":     c.DrGreen.BreakerEnabled,
		"logLevel":           c.Log.Level,
		"allowOrigins":       c.HTTP.AllowOrigins,
	}
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		var out []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
