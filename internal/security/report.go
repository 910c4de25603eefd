package security

import (
	"fmt"
	"log/slog"
	"time"

	goTasks "github.com/MrEthical07/goTasks"
)

// Argon2 is the password hashing cost in effect.
type Argon2 struct {
	MemoryKB    uint32 `json:"memoryKB"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
}

type Report struct {
	ProductionMode      bool          `json:"productionMode"`
	SigningAlgorithm    string        `json:"signingAlgorithm"`
	AccessTTL           time.Duration `json:"accessTTL"`
	SessionTTL          time.Duration `json:"sessionTTL"`
	Argon2              Argon2        `json:"argon2"`
	HashUpgradeOnLogin  bool          `json:"hashUpgradeOnLogin"`
	SecureCookies       bool          `json:"secureCookies"`
	DedicatedRefreshKey bool          `json:"dedicatedRefreshKey"`
	RateLimitingActive  bool          `json:"rateLimitingActive"`
	AuditActive         bool          `json:"auditActive"`
	TrustProxy          bool          `json:"trustProxy"`

	// Warnings lists settings that are unsafe for production.
	Warnings []string `json:"warnings,omitempty"`
}

type Input struct {
	ProductionMode bool
	TrustProxy     bool
	Engine         goTasks.Config
}

const (
	minProdArgon2MemoryKB = 19 * 1024
	maxProdAccessTTL      = time.Hour
)

func BuildReport(in Input) Report {
	cfg := in.Engine
	r := Report{
		ProductionMode:   in.ProductionMode,
		SigningAlgorithm: cfg.JWT.SigningMethod,
		AccessTTL:        cfg.JWT.AccessTTL,
		SessionTTL:       cfg.Session.TTL,
		Argon2: Argon2{
			MemoryKB:    cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
		},
		HashUpgradeOnLogin:  cfg.Password.UpgradeOnLogin,
		SecureCookies:       cfg.Cookie.Secure,
		DedicatedRefreshKey: len(cfg.JWT.RefreshKey) > 0,
		RateLimitingActive:  cfg.RateLimit.Enabled && cfg.RateLimit.MaxRequests > 0,
		AuditActive:         cfg.Audit.Enabled,
		TrustProxy:          in.TrustProxy,
	}

	if !in.ProductionMode {
		return r
	}
	if !r.SecureCookies {
		r.Warnings = append(r.Warnings, "cookies are sent without the Secure attribute")
	}
	if !r.RateLimitingActive {
		r.Warnings = append(r.Warnings, "authentication endpoints are not rate limited")
	}
	if r.Argon2.MemoryKB < minProdArgon2MemoryKB {
		r.Warnings = append(r.Warnings, fmt.Sprintf("argon2 memory %d KB is below %d KB", r.Argon2.MemoryKB, minProdArgon2MemoryKB))
	}
	if r.AccessTTL > maxProdAccessTTL {
		r.Warnings = append(r.Warnings, fmt.Sprintf("access tokens live %s", r.AccessTTL))
	}
	return r
}

// LogValue renders the report as a slog group; warnings are logged separately.
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("production", r.ProductionMode),
		slog.String("alg", r.SigningAlgorithm),
		slog.Duration("access_ttl", r.AccessTTL),
		slog.Duration("session_ttl", r.SessionTTL),
		slog.Any("argon2_memory_kb", r.Argon2.MemoryKB),
		slog.Bool("secure_cookies", r.SecureCookies),
		slog.Bool("dedicated_refresh_key", r.DedicatedRefreshKey),
		slog.Bool("rate_limiting", r.RateLimitingActive),
		slog.Bool("audit", r.AuditActive),
		slog.Bool("trust_proxy", r.TrustProxy),
	)
}
