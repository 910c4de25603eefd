// Package config loads the server configuration.
//
// Sources, highest priority first:
//  1. explicit path (--config);
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. environment only (cleanenv).
//
// Environment variables always overlay values read from a file.
package config

import (
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	goTasks "github.com/MrEthical07/goTasks"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Password  PasswordConfig  `yaml:"password"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// HTTPConfig is the public REST server.
type HTTPConfig struct {
	Host            string        `yaml:"host"             env:"HTTP_HOST"             env-default:"0.0.0.0"`
	Port            string        `yaml:"port"             env:"HTTP_PORT"             env-default:"3000"`
	BasePath        string        `yaml:"base_path"        env:"HTTP_BASE_PATH"`
	TrustProxy      bool          `yaml:"trust_proxy"      env:"HTTP_TRUST_PROXY"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"HTTP_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"HTTP_WRITE_TIMEOUT"    env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"HTTP_IDLE_TIMEOUT"     env-default:"60s"`
	RequestTimeout  time.Duration `yaml:"request_timeout"  env:"HTTP_REQUEST_TIMEOUT"  env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// RedisConfig locates the store shared by users, sessions, lists and the rate limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"     env-default:"127.0.0.1:6379"`
	Username string `yaml:"username" env:"REDIS_USERNAME"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"       env-default:"0"`
	Prefix   string `yaml:"prefix"   env:"REDIS_PREFIX"   env-default:"gt"`
}

// AuthConfig holds token lifetimes, key material and cookie attributes.
//
// Keys are raw strings, "base64:"-prefixed values, or files named by the
// *_FILE variants (raw bytes or PEM).
type AuthConfig struct {
	SigningMethod  string        `yaml:"signing_method"   env:"JWT_SIGNING_METHOD" env-default:"hs256"`
	SigningKey     string        `yaml:"signing_key"      env:"JWT_SIGNING_KEY"`
	SigningKeyFile string        `yaml:"signing_key_file" env:"JWT_SIGNING_KEY_FILE"`
	PublicKeyFile  string        `yaml:"public_key_file"  env:"JWT_PUBLIC_KEY_FILE"`
	RefreshKey     string        `yaml:"refresh_key"      env:"REFRESH_TOKEN_KEY"`
	Issuer         string        `yaml:"issuer"           env:"JWT_ISSUER"`
	Audience       string        `yaml:"audience"         env:"JWT_AUDIENCE"`
	AccessTTL      time.Duration `yaml:"access_ttl"       env:"JWT_ACCESS_TTL"     env-default:"15m"`
	SessionTTL     time.Duration `yaml:"session_ttl"      env:"SESSION_TTL"        env-default:"240h"`
	CookieSecure   bool          `yaml:"cookie_secure"    env:"COOKIE_SECURE"`
	CookieDomain   string        `yaml:"cookie_domain"    env:"COOKIE_DOMAIN"`
}

// PasswordConfig are the argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 `yaml:"memory_kb"   env:"ARGON2_MEMORY_KB"   env-default:"65536"`
	Time        uint32 `yaml:"time"        env:"ARGON2_TIME"        env-default:"3"`
	Parallelism uint8  `yaml:"parallelism" env:"ARGON2_PARALLELISM" env-default:"2"`
	MinLength   int    `yaml:"min_length"  env:"PASSWORD_MIN_LENGTH" env-default:"8"`
}

// RateLimitConfig bounds signup, login and refresh per client IP.
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"      env:"RATE_LIMIT_ENABLED"`
	MaxRequests int           `yaml:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS" env-default:"25"`
	Window      time.Duration `yaml:"window"       env:"RATE_LIMIT_WINDOW"       env-default:"15m"`
}

type AuditConfig struct {
	Enabled      bool          `yaml:"enabled"       env:"AUDIT_ENABLED"`
	BufferSize   int           `yaml:"buffer_size"   env:"AUDIT_BUFFER_SIZE"   env-default:"1024"`
	FlushTimeout time.Duration `yaml:"flush_timeout" env:"AUDIT_FLUSH_TIMEOUT" env-default:"5s"`
}

// MetricsConfig toggles the engine counters and the /metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"   env:"METRICS_ENABLED"`
	Latency   bool   `yaml:"latency"   env:"METRICS_LATENCY"`
	Namespace string `yaml:"namespace" env:"METRICS_NAMESPACE" env-default:"gotasks"`
}

// MustLoad panics when the configuration cannot be loaded.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// defaults seeds the switches that are on unless turned off. cleanenv only
// applies env-default to zero values, so a default of true there would
// override an explicit false.
func defaults() Config {
	var cfg Config
	cfg.Auth.CookieSecure = true
	cfg.RateLimit.Enabled = true
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.Latency = true
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
		return &cfg, nil
	}

	if path != "" {
		return tryRead(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return &cfg, nil
}

// Engine maps the server configuration onto the engine configuration,
// resolving key material.
func (c *Config) Engine() (goTasks.Config, error) {
	out := goTasks.DefaultConfig()

	out.JWT.SigningMethod = strings.ToLower(c.Auth.SigningMethod)
	out.JWT.AccessTTL = c.Auth.AccessTTL
	out.JWT.Issuer = c.Auth.Issuer
	out.JWT.Audience = c.Auth.Audience

	var err error
	if out.JWT.PrivateKey, err = loadKey(c.Auth.SigningKey, c.Auth.SigningKeyFile); err != nil {
		return goTasks.Config{}, fmt.Errorf("signing key: %w", err)
	}
	if out.JWT.PublicKey, err = loadKey("", c.Auth.PublicKeyFile); err != nil {
		return goTasks.Config{}, fmt.Errorf("public key: %w", err)
	}
	if out.JWT.RefreshKey, err = loadKey(c.Auth.RefreshKey, ""); err != nil {
		return goTasks.Config{}, fmt.Errorf("refresh key: %w", err)
	}

	out.Session.TTL = c.Auth.SessionTTL
	out.Session.RedisPrefix = c.Redis.Prefix
	out.Cookie.Secure = c.Auth.CookieSecure
	out.Cookie.Domain = c.Auth.CookieDomain

	out.Password.Memory = c.Password.Memory
	out.Password.Time = c.Password.Time
	out.Password.Parallelism = c.Password.Parallelism
	out.Password.MinLength = c.Password.MinLength

	out.RateLimit.Enabled = c.RateLimit.Enabled
	out.RateLimit.MaxRequests = c.RateLimit.MaxRequests
	out.RateLimit.Window = c.RateLimit.Window
	out.RateLimit.RedisPrefix = c.Redis.Prefix + ":rl"

	out.Audit.Enabled = c.Audit.Enabled
	out.Audit.BufferSize = c.Audit.BufferSize
	out.Audit.FlushTimeout = c.Audit.FlushTimeout

	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Latency

	return out, out.Validate()
}

// Logger builds the process logger for the environment: text with debug
// level locally, JSON elsewhere.
func (c *Config) Logger() *slog.Logger {
	switch c.Env {
	case EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case EnvProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func loadKey(value, file string) ([]byte, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if block, _ := pem.Decode(raw); block != nil {
			return block.Bytes, nil
		}
		return raw, nil
	}

	if b64, ok := strings.CutPrefix(value, "base64:"); ok {
		return base64.StdEncoding.DecodeString(b64)
	}
	if value == "" {
		return nil, nil
	}
	return []byte(value), nil
}
