package goTasks

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goTasks/internal/audit"
	"github.com/MrEthical07/goTasks/internal/rate"
	"github.com/MrEthical07/goTasks/jwt"
	"github.com/MrEthical07/goTasks/password"
	"github.com/MrEthical07/goTasks/refresh"
	"github.com/MrEthical07/goTasks/session"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const refreshKeyLabel = "gotasks/refresh-token-key/v1"

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	logger    *slog.Logger
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for user documents and rate limiting.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. slog.Default() is used when unset.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the sink that receives audit events when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for session expiry, token issuance and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, parses key material and wires every
// component. It fails fast with an error wrapping ErrConfiguration when no
// signing key is configured, unless JWT.AllowMissingKey is set.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		logger:  logger.With(slog.String("component", "auth")),
		users:   session.NewStore(b.redis, cfg.Session.RedisPrefix),
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
	}

	ph, err := password.NewHasher(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	engine.passwords = ph

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			Enabled:     true,
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
			Prefix:      cfg.RateLimit.RedisPrefix,
		})
	}

	if cfg.hasSigningKey() {
		if err := engine.wireTokens(cfg, now); err != nil {
			return nil, err
		}
	} else {
		engine.keyErr = fmt.Errorf("%w: JWT signing key not configured", ErrConfiguration)
		engine.logger.Warn("auth engine started without a signing key; token operations will fail")
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		FlushTimeout: cfg.Audit.FlushTimeout,
	}, b.auditSink)

	b.built = true

	return engine, nil
}

func (e *Engine) wireTokens(cfg Config, now func() time.Time) error {
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Clock:         now,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	e.jwt = jm

	refreshKey := cfg.JWT.RefreshKey
	if len(refreshKey) == 0 {
		refreshKey, err = deriveRefreshKey(cfg.JWT.PrivateKey)
		if err != nil {
			return err
		}
	}
	codec, err := refresh.NewCodec(refreshKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	sm, err := session.NewManager(e.users, codec, cfg.Session.TTL, session.WithClock(now))
	if err != nil {
		return err
	}
	e.sessions = sm
	return nil
}

// deriveRefreshKey separates the refresh-token key from the access-token key
// by HMAC-ing a fixed label with the signing key.
func deriveRefreshKey(signingKey []byte) ([]byte, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("%w: refresh key cannot be derived without a private key", ErrConfiguration)
	}
	return gjwt.SigningMethodHS256.Sign(refreshKeyLabel, signingKey)
}
