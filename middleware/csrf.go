package middleware

import (
	"net/http"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/internal/apierr"
)

// RequireCSRF returns middleware enforcing the double-submit check: the
// XSRF-TOKEN cookie must be present and equal to the X-XSRF-TOKEN header.
// Otherwise it answers 403.
func RequireCSRF(engine *goTasks.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookie string
			if c, err := r.Cookie(CookieCSRF); err == nil {
				cookie = c.Value
			}

			if err := engine.VerifyCSRF(r.Context(), cookie, r.Header.Get(HeaderCSRF)); err != nil {
				apierr.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
