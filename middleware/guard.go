package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/internal/apierr"
	"github.com/MrEthical07/goTasks/session"
)

// Header and cookie names shared by the server and its first-party client.
const (
	HeaderAccessToken  = "x-access-token"
	HeaderCSRF         = "X-XSRF-TOKEN"
	CookieRefreshToken = "refreshToken"
	CookieCSRF         = "XSRF-TOKEN"
)

type userIDContextKey struct{}

type sessionContextKey struct{}

// Session is the request-scoped result of RequireSession.
type Session struct {
	UserID       string
	User         *session.User
	RefreshToken string
	// ExpiresAt is when the matched session ends; it is fixed at login.
	ExpiresAt time.Time
}

// UserIDFromContext returns the subject of a verified access token.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	return id, ok && id != ""
}

// SessionFromContext returns the session validated by RequireSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok
}

// RequireAccessToken returns middleware that verifies the x-access-token
// header. On success the user id is available through UserIDFromContext.
// An engine without a signing key answers 500; any verification failure
// answers 401 and leaves the context untouched.
func RequireAccessToken(engine *goTasks.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				apierr.WriteError(w, r, goTasks.ErrEngineNotReady)
				return
			}

			userID, err := engine.VerifyAccessToken(r.Header.Get(HeaderAccessToken))
			if err != nil {
				logReject(r.Context(), engine, "access token rejected", err)
				apierr.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logReject(ctx context.Context, engine *goTasks.Engine, msg string, err error) {
	level := slog.LevelDebug
	if errors.Is(err, goTasks.ErrConfiguration) || errors.Is(err, goTasks.ErrStoreUnavailable) {
		level = slog.LevelError
	}
	engine.Logger().LogAttrs(ctx, level, msg, slog.Any("err", err))
}
