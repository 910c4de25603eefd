package middleware

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/internal/apierr"
)

// RateLimitAuth returns middleware that charges the client IP against the
// engine's budget for scope. Requests over budget answer 429 with a
// Retry-After header. A limiter backend failure answers 503.
func RateLimitAuth(engine *goTasks.Engine, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			ctx := r.Context()
			if goTasks.ClientIPFromContext(ctx) == "" {
				ctx = goTasks.WithClientIP(ctx, ip)
			}

			d, err := engine.AllowAuthAttempt(ctx, scope, ip)
			if err != nil {
				if errors.Is(err, goTasks.ErrRateLimited) && d.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				}
				logReject(ctx, engine, "auth attempt refused", err)
				apierr.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the IP attached with goTasks.WithClientIP, falling back to
// the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := goTasks.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
