package middleware

import (
	"context"
	"net/http"
	"time"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/internal"
	"github.com/MrEthical07/goTasks/internal/apierr"
)

// RequireSession returns middleware that validates the refreshToken cookie:
// signature, owner lookup, membership and expiry. A missing or rejected
// cookie answers 401. On success SessionFromContext carries the user.
func RequireSession(engine *goTasks.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				apierr.WriteError(w, r, goTasks.ErrEngineNotReady)
				return
			}

			c, err := r.Cookie(CookieRefreshToken)
			if err != nil || c.Value == "" {
				apierr.WriteError(w, r, goTasks.ErrSessionNotFound)
				return
			}

			user, err := engine.ValidateSession(r.Context(), c.Value)
			if err != nil {
				logReject(r.Context(), engine, "refresh session rejected", err)
				apierr.WriteError(w, r, err)
				return
			}

			s := &Session{UserID: user.ID, User: user, RefreshToken: c.Value}
			if entry, ok := user.FindSession(internal.HashToken(c.Value)); ok {
				s.ExpiresAt = time.Unix(entry.ExpiresAt, 0)
			}
			ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
