package goTasks

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goTasks/internal"
	"github.com/MrEthical07/goTasks/internal/audit"
	"github.com/MrEthical07/goTasks/internal/rate"
	"github.com/MrEthical07/goTasks/jwt"
	"github.com/MrEthical07/goTasks/password"
	"github.com/MrEthical07/goTasks/session"
	"github.com/google/uuid"
)

// Rate limit scopes used by AllowAuthAttempt.
const (
	ScopeSignup  = "signup"
	ScopeLogin   = "login"
	ScopeRefresh = "refresh"
)

// RateDecision is the outcome of an AllowAuthAttempt call.
type RateDecision = rate.Decision

// AuthResult is returned by Signup and Login. RefreshToken is the raw token
// and is not retrievable again.
type AuthResult struct {
	User         session.PublicUser
	AccessToken  string
	RefreshToken string
}

// Engine is the authentication facade used by the HTTP layer.
//
// Engine instances are created by [Builder.Build] and are immutable afterwards.
type Engine struct {
	config    Config
	logger    *slog.Logger
	users     *session.Store
	sessions  *session.Manager
	jwt       *jwt.Manager
	passwords *password.Hasher
	limiter   *rate.Limiter
	audit     *audit.Dispatcher
	metrics   *Metrics
	now       func() time.Time

	// keyErr is set when the engine was built without key material.
	keyErr error

	dummyOnce sync.Once
	dummyHash string
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	return e.keyErr
}

// Signup describes the signup operation and its observable behavior.
//
// Signup validates and normalizes the credentials, stores a new user with an
// argon2id hash and opens the first session. A registered email yields
// ErrAccountExists; invalid input yields a *ValidationError.
func (e *Engine) Signup(ctx context.Context, email, pw string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res, err := e.signup(ctx, email, pw)
	if err != nil {
		e.metricInc(MetricSignupFailure)
		e.emitAudit(ctx, auditEventSignupFailure, false, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, res.User.ID, nil, nil)
	return res, nil
}

func (e *Engine) signup(ctx context.Context, email, pw string) (*AuthResult, error) {
	normalized, err := e.validateCredentials(email, pw)
	if err != nil {
		return nil, err
	}

	hash, err := e.passwords.Hash(pw)
	if err != nil {
		return nil, err
	}

	user := &session.User{
		ID:           uuid.NewString(),
		Email:        normalized,
		PasswordHash: hash,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.users.Insert(ctx, user); err != nil {
		return nil, mapStoreError(err)
	}

	return e.openSession(ctx, user)
}

// Login describes the login operation and its observable behavior.
//
// Login checks the credentials and opens a new session. Unknown emails and
// wrong passwords both return ErrInvalidCredentials after comparable work.
// A hash with outdated parameters is upgraded when Password.UpgradeOnLogin is set.
func (e *Engine) Login(ctx context.Context, email, pw string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res, err := e.login(ctx, email, pw)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.User.ID, nil, nil)
	return res, nil
}

func (e *Engine) login(ctx context.Context, email, pw string) (*AuthResult, error) {
	normalized := NormalizeEmail(email)

	verr := &ValidationError{}
	validateEmail(normalized, verr)
	switch {
	case pw == "":
		verr.Add("password", "is required")
	case len(pw) > e.config.Password.MaxLength:
		verr.Add("password", "is too long")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	user, err := e.users.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, session.ErrUserNotFound) {
			e.burnVerify(pw)
			return nil, ErrInvalidCredentials
		}
		return nil, mapStoreError(err)
	}

	ok, err := e.passwords.Verify(pw, user.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash rejected", slog.String("user_id", user.ID), slog.Any("err", err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, user, pw)
	}

	return e.openSession(ctx, user)
}

// burnVerify runs one verification against a throwaway hash so that unknown
// emails cost about as much as wrong passwords.
func (e *Engine) burnVerify(pw string) {
	e.dummyOnce.Do(func() {
		secret, err := internal.GenerateOpaqueToken(16)
		if err != nil {
			return
		}
		e.dummyHash, _ = e.passwords.Hash(secret)
	})
	if e.dummyHash != "" {
		_, _ = e.passwords.Verify(pw, e.dummyHash)
	}
}

func (e *Engine) upgradeHash(ctx context.Context, user *session.User, pw string) {
	needs, err := e.passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	hash, err := e.passwords.Hash(pw)
	if err != nil {
		return
	}

	old := user.PasswordHash
	_, err = e.users.Update(ctx, user.ID, func(u *session.User) error {
		if u.PasswordHash != old {
			return nil
		}
		u.PasswordHash = hash
		return nil
	})
	if err != nil {
		e.logger.Warn("password hash upgrade failed", slog.String("user_id", user.ID), slog.Any("err", err))
		return
	}
	user.PasswordHash = hash
}

func (e *Engine) openSession(ctx context.Context, user *session.User) (*AuthResult, error) {
	raw, err := e.sessions.CreateSession(ctx, user)
	if err != nil {
		return nil, mapStoreError(err)
	}
	e.metricInc(MetricSessionCreated)

	access, err := e.jwt.CreateAccess(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         user.Public(),
		AccessToken:  access,
		RefreshToken: raw,
	}, nil
}

// IssueAccessToken mints an access token for userID.
func (e *Engine) IssueAccessToken(userID string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	return e.jwt.CreateAccess(userID)
}

// VerifyAccessToken describes the verifyaccesstoken operation and its observable behavior.
//
// VerifyAccessToken checks signature, algorithm and expiry and returns the
// subject. It never touches storage. Every failure wraps ErrTokenInvalid; an
// engine without a signing key returns ErrConfiguration.
func (e *Engine) VerifyAccessToken(token string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if token == "" {
		e.metricInc(MetricTokenInvalid)
		return "", ErrTokenInvalid
	}

	start := time.Now()
	claims, err := e.jwt.ParseAccess(token)
	e.metricObserve(MetricVerifyLatency, start)
	if err != nil {
		e.metricInc(MetricTokenInvalid)
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return claims.UserID(), nil
}

// ValidateSession describes the validatesession operation and its observable behavior.
//
// ValidateSession verifies the refresh token signature, loads its owner and
// checks membership and expiry. It returns ErrSessionNotFound or
// ErrSessionExpired for rejected tokens.
func (e *Engine) ValidateSession(ctx context.Context, refreshToken string) (*session.User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var (
		user *session.User
		err  error
	)
	if refreshToken == "" {
		err = ErrSessionNotFound
	} else {
		user, _, err = e.sessions.Validate(ctx, refreshToken)
		err = mapStoreError(err)
	}
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", err, nil)
		return nil, err
	}
	return user, nil
}

// RefreshAccessToken mints a new access token for a user whose session was
// already validated by ValidateSession.
func (e *Engine) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	tok, err := e.jwt.CreateAccess(userID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, nil, nil)
	return tok, nil
}

// Logout removes the session identified by refreshToken. Removing a session
// that is already gone is not an error.
func (e *Engine) Logout(ctx context.Context, userID, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.sessions.RemoveSession(ctx, userID, refreshToken); err != nil {
		return mapStoreError(err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogout, true, userID, nil, nil)
	return nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword verifies the current password, stores a hash of the new one
// and revokes every session of the user in the same document write.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}

	revoked, err := e.changePassword(ctx, userID, current, next)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordFailure, false, userID, err, nil)
		return err
	}

	e.metricInc(MetricPasswordChange)
	for i := 0; i < revoked; i++ {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventPasswordChange, true, userID, nil, nil)
	return nil
}

func (e *Engine) changePassword(ctx context.Context, userID, current, next string) (int, error) {
	verr := &ValidationError{}
	if current == "" {
		verr.Add("currentPassword", "is required")
	}
	e.validatePassword("newPassword", next, verr)
	if err := verr.OrNil(); err != nil {
		return 0, err
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return 0, mapStoreError(err)
	}

	ok, err := e.passwords.Verify(current, user.PasswordHash)
	if err != nil || !ok {
		return 0, ErrInvalidCredentials
	}

	hash, err := e.passwords.Hash(next)
	if err != nil {
		return 0, err
	}

	var revoked int
	_, err = e.users.Update(ctx, userID, func(u *session.User) error {
		if u.PasswordHash != user.PasswordHash {
			return ErrInvalidCredentials
		}
		u.PasswordHash = hash
		revoked = len(u.Sessions)
		u.Sessions = nil
		return nil
	})
	if err != nil {
		return 0, mapStoreError(err)
	}
	return revoked, nil
}

// DeleteAccount removes the user document, its sessions and the email index.
// Owned lists and tasks are removed by the caller.
func (e *Engine) DeleteAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.users.Delete(ctx, userID); err != nil {
		return mapStoreError(err)
	}

	e.emitAudit(ctx, auditEventAccountDeleted, true, userID, nil, nil)
	return nil
}

// User loads the user record for an authenticated id.
func (e *Engine) User(ctx context.Context, userID string) (*session.User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return u, nil
}

// GenerateCSRFToken returns a fresh random value for the XSRF-TOKEN cookie.
func (e *Engine) GenerateCSRFToken() (string, error) {
	return internal.GenerateOpaqueToken(internal.CSRFTokenSize)
}

// VerifyCSRF describes the verifycsrf operation and its observable behavior.
//
// VerifyCSRF compares the cookie and header values in constant time. Either
// value missing, or the two differing, returns ErrCSRFMismatch.
func (e *Engine) VerifyCSRF(ctx context.Context, cookie, header string) error {
	if cookie != "" && header != "" && subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) == 1 {
		return nil
	}

	e.metricInc(MetricCSRFRejected)
	e.emitAudit(ctx, auditEventCSRFRejected, false, "", ErrCSRFMismatch, nil)
	return ErrCSRFMismatch
}

// AllowAuthAttempt charges one request from ip against scope's budget.
// It returns ErrRateLimited once the budget is spent and ErrStoreUnavailable
// when Redis cannot be reached.
func (e *Engine) AllowAuthAttempt(ctx context.Context, scope, ip string) (RateDecision, error) {
	if e == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	if e.limiter == nil {
		return RateDecision{Allowed: true}, nil
	}

	d, err := e.limiter.Allow(ctx, scope, ip)
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, scope)
		return d, ErrRateLimited
	default:
		e.logger.Error("rate limiter unavailable", slog.String("scope", scope), slog.Any("err", err))
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// Metrics exposes the live counters for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// Close flushes and stops the audit dispatcher, waiting at most
// Audit.FlushTimeout. Events that were never delivered are logged by type.
func (e *Engine) Close() {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Close()
	if n := e.audit.Dropped(); n > 0 {
		attrs := []any{slog.Uint64("total", n)}
		for typ, count := range e.audit.DroppedByType() {
			attrs = append(attrs, slog.Uint64(typ, count))
		}
		e.logger.Warn("audit events dropped", slog.Group("dropped", attrs...))
	}
}

// AuditDropped reports how many audit events were discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared state and is safe for concurrent use.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// mapStoreError translates session package errors into the root sentinels.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrSessionExpired):
		return ErrSessionExpired
	case errors.Is(err, session.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, session.ErrEmailTaken):
		return ErrAccountExists
	case errors.Is(err, session.ErrStoreUnavailable), errors.Is(err, session.ErrConflict):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}
