package goTasks

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goTasks/internal"
	"github.com/MrEthical07/goTasks/password"
	"github.com/MrEthical07/goTasks/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = bytes.Repeat([]byte{'k'}, 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	cfg.RateLimit.MaxRequests = 3
	cfg.RateLimit.Window = time.Minute
	return cfg
}

func newTestEngine(t testing.TB, mutate func(*Config), opts ...func(*Builder)) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr, rdb := newTestRedis(t)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().WithConfig(cfg).WithRedis(rdb)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, mr
}

func TestBuildFailsWithoutSigningKey(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.JWT.PrivateKey = nil

	_, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	require.ErrorIs(t, err, ErrConfiguration)

	cfg.JWT.PrivateKey = []byte("short")
	_, err = New().WithConfig(cfg).WithRedis(rdb).Build()
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestBuilderIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb)

	engine, err := b.Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = b.Build()
	assert.Error(t, err)

	_, err = New().WithConfig(testConfig()).Build()
	assert.Error(t, err, "redis client is required")
}

func TestEngineWithoutKeyFailsTokenOperations(t *testing.T) {
	engine, _ := newTestEngine(t, func(c *Config) {
		c.JWT.PrivateKey = nil
		c.JWT.AllowMissingKey = true
	})
	ctx := context.Background()

	_, err := engine.VerifyAccessToken("anything")
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = engine.IssueAccessToken("u-1")
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = engine.Signup(ctx, "a@example.com", "correct-password")
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = engine.ValidateSession(ctx, "x.y.z")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNilEngineIsNotReady(t *testing.T) {
	var engine *Engine
	_, err := engine.Login(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, ErrEngineNotReady)
	_, err = engine.VerifyAccessToken("t")
	assert.ErrorIs(t, err, ErrEngineNotReady)
	assert.Zero(t, engine.AuditDropped())
	engine.Close()
}

func TestSignupIssuesTokensAndStoresHashOnly(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := engine.Signup(ctx, "  Alice@Example.COM ", "correct-password")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.NotEmpty(t, res.User.ID)

	sub, err := engine.VerifyAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, sub)

	u, err := engine.User(ctx, res.User.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$argon2id$"))
	assert.NotContains(t, u.PasswordHash, "correct-password")
	require.Len(t, u.Sessions, 1)
	assert.Equal(t, internal.HashToken(res.RefreshToken), u.Sessions[0].TokenHash)
}

func TestSignupValidation(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.Signup(ctx, "not-an-email", "short")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")

	for _, email := range []string{"", "a@localhost", "Bob <bob@example.com>"} {
		_, err := engine.Signup(ctx, email, "correct-password")
		require.ErrorAs(t, err, &verr, email)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.Signup(ctx, "dup@example.com", "correct-password")
	require.NoError(t, err)
	_, err = engine.Signup(ctx, "DUP@example.com", "another-password")
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestLoginOutcomes(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	signup, err := engine.Signup(ctx, "bob@example.com", "correct-password")
	require.NoError(t, err)

	res, err := engine.Login(ctx, "BOB@example.com", "correct-password")
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID, res.User.ID)
	assert.NotEqual(t, signup.RefreshToken, res.RefreshToken)

	_, err = engine.Login(ctx, "bob@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = engine.Login(ctx, "nobody@example.com", "correct-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = engine.Login(ctx, "bob@example.com", "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	u, err := engine.User(ctx, signup.User.ID)
	require.NoError(t, err)
	assert.Len(t, u.Sessions, 2)
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	baseCfg := testConfig()
	weakCfg := baseCfg.passwordConfig()
	weakCfg.KeyLength = 16
	weak, err := password.NewHasher(weakCfg)
	require.NoError(t, err)
	hash, err := weak.Hash("correct-password")
	require.NoError(t, err)

	require.NoError(t, engine.users.Insert(ctx, &session.User{
		ID:           "legacy",
		Email:        "legacy@example.com",
		PasswordHash: hash,
	}))

	_, err = engine.Login(ctx, "legacy@example.com", "correct-password")
	require.NoError(t, err)

	u, err := engine.User(ctx, "legacy")
	require.NoError(t, err)
	assert.NotEqual(t, hash, u.PasswordHash)
	needs, err := engine.passwords.NeedsUpgrade(u.PasswordHash)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestVerifyAccessTokenRejectsForeignAndExpired(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	engine, _ := newTestEngine(t, nil, func(b *Builder) { b.WithClock(clock.Now) })
	other, _ := newTestEngine(t, func(c *Config) { c.JWT.PrivateKey = bytes.Repeat([]byte{'o'}, 32) })

	tok, err := engine.IssueAccessToken("u-1")
	require.NoError(t, err)

	foreign, err := other.IssueAccessToken("u-1")
	require.NoError(t, err)
	_, err = engine.VerifyAccessToken(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	clock.Advance(15*time.Minute + time.Second)
	_, err = engine.VerifyAccessToken(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = engine.VerifyAccessToken("")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateSessionAndRefresh(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	engine, _ := newTestEngine(t, nil, func(b *Builder) { b.WithClock(clock.Now) })
	ctx := context.Background()

	res, err := engine.Signup(ctx, "carol@example.com", "correct-password")
	require.NoError(t, err)

	u, err := engine.ValidateSession(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, u.ID)

	fresh, err := engine.RefreshAccessToken(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, res.AccessToken, fresh)

	_, err = engine.ValidateSession(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = engine.ValidateSession(ctx, "forged.token.value")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	clock.Advance(engine.Config().Session.TTL)
	_, err = engine.ValidateSession(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestLogoutRemovesOnlyThatSession(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.Signup(ctx, "dave@example.com", "correct-password")
	require.NoError(t, err)
	second, err := engine.Login(ctx, "dave@example.com", "correct-password")
	require.NoError(t, err)

	require.NoError(t, engine.Logout(ctx, first.User.ID, first.RefreshToken))
	require.NoError(t, engine.Logout(ctx, first.User.ID, first.RefreshToken))

	_, err = engine.ValidateSession(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = engine.ValidateSession(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestDeleteAccount(t *testing.T) {
	engine, mr := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := engine.Signup(ctx, "erin@example.com", "correct-password")
	require.NoError(t, err)

	require.NoError(t, engine.DeleteAccount(ctx, res.User.ID))
	assert.False(t, mr.Exists("gt:user:"+res.User.ID))

	_, err = engine.User(ctx, res.User.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = engine.ValidateSession(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = engine.Signup(ctx, "erin@example.com", "correct-password")
	assert.NoError(t, err)
}

func TestCSRFTokenAndVerify(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	a, err := engine.GenerateCSRFToken()
	require.NoError(t, err)
	b, err := engine.GenerateCSRFToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)

	assert.NoError(t, engine.VerifyCSRF(ctx, a, a))
	assert.ErrorIs(t, engine.VerifyCSRF(ctx, a, b), ErrCSRFMismatch)
	assert.ErrorIs(t, engine.VerifyCSRF(ctx, "", ""), ErrCSRFMismatch)
	assert.ErrorIs(t, engine.VerifyCSRF(ctx, a, ""), ErrCSRFMismatch)
}

func TestAllowAuthAttempt(t *testing.T) {
	engine, mr := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := engine.AllowAuthAttempt(ctx, ScopeLogin, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := engine.AllowAuthAttempt(ctx, ScopeLogin, "203.0.113.7")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)
	assert.Equal(t, uint64(1), engine.MetricsSnapshot().Counters[MetricRateLimitHit])

	_, err = engine.AllowAuthAttempt(ctx, ScopeLogin, "203.0.113.8")
	assert.NoError(t, err)

	mr.FastForward(time.Minute)
	_, err = engine.AllowAuthAttempt(ctx, ScopeLogin, "203.0.113.7")
	assert.NoError(t, err)

	mr.Close()
	_, err = engine.AllowAuthAttempt(ctx, ScopeSignup, "203.0.113.7")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestAllowAuthAttemptDisabled(t *testing.T) {
	engine, _ := newTestEngine(t, func(c *Config) { c.RateLimit.Enabled = false })
	for i := 0; i < 50; i++ {
		_, err := engine.AllowAuthAttempt(context.Background(), ScopeSignup, "198.51.100.1")
		require.NoError(t, err)
	}
}

func TestStoreOutageSurfacesAsUnavailable(t *testing.T) {
	engine, mr := newTestEngine(t, nil)
	mr.Close()

	_, err := engine.Signup(context.Background(), "frank@example.com", "correct-password")
	assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)
}
