package goTasks

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goTasks/password"
	"github.com/MrEthical07/goTasks/refresh"
)

// Config is the complete engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	Password  PasswordConfig
	Cookie    CookieConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token signing and the refresh-token HMAC key.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	// RefreshKey signs refresh tokens. When empty it is derived from PrivateKey.
	RefreshKey []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// AllowMissingKey lets Build succeed without key material. Every token
	// operation of such an engine fails with ErrConfiguration.
	AllowMissingKey bool
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh-token sessions and user document storage.
type SessionConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and the password length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the attributes of the refresh and CSRF cookies.
type CookieConfig struct {
	Secure bool
	Domain string
	// RefreshPath scopes the refresh cookie. It is relative to the point
	// where the API is mounted; the router prefixes its base path.
	RefreshPath string
}

/*
====================================
RATE LIMIT / AUDIT / METRICS
====================================
*/

// RateLimitConfig bounds signup, login and refresh requests per client IP.
type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
	RedisPrefix string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// FlushTimeout bounds how long Engine.Close waits for queued events.
	FlushTimeout time.Duration
}

// MetricsConfig toggles the in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. Key material is left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		Session: SessionConfig{
			TTL:         10 * 24 * time.Hour,
			RedisPrefix: "gt",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      password.DefaultMinLength,
			MaxLength:      password.DefaultMaxLength,
			UpgradeOnLogin: true,
		},
		Cookie: CookieConfig{
			Secure:      true,
			RefreshPath: "/auth/token",
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxRequests: 25,
			Window:      15 * time.Minute,
			RedisPrefix: "gt:rl",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize:   1024,
			DropIfFull:   true,
			FlushTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.JWT.RefreshKey = cloneBytes(cfg.JWT.RefreshKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// hasSigningKey reports whether the JWT section carries any key material.
func (c *Config) hasSigningKey() bool {
	return len(c.JWT.PrivateKey) > 0 || len(c.JWT.PublicKey) > 0
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate checks structural limits only. Missing key material is reported as
// ErrConfiguration unless JWT.AllowMissingKey is set; key parsing errors surface
// later from Build.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}
	if !c.hasSigningKey() && !c.JWT.AllowMissingKey {
		return fmt.Errorf("%w: JWT signing key is required", ErrConfiguration)
	}
	if len(c.JWT.RefreshKey) > 0 && len(c.JWT.RefreshKey) < refresh.MinKeySize {
		return fmt.Errorf("JWT RefreshKey must be at least %d bytes", refresh.MinKeySize)
	}
	if c.JWT.SigningMethod == "ed25519" && c.hasSigningKey() && len(c.JWT.RefreshKey) == 0 && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 verify-only configuration requires an explicit RefreshKey")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.TTL <= c.JWT.AccessTTL {
		return errors.New("Session TTL must exceed JWT AccessTTL")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Cookie
	if c.Cookie.RefreshPath == "" || c.Cookie.RefreshPath[0] != '/' {
		return errors.New("Cookie RefreshPath must be an absolute path")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests <= 0 {
			return errors.New("RateLimit MaxRequests must be > 0")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	if c.Audit.FlushTimeout < 0 {
		return errors.New("Audit FlushTimeout must be >= 0")
	}

	return nil
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
		MinLength:   c.Password.MinLength,
		MaxLength:   c.Password.MaxLength,
	}
}
