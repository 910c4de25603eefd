package httpapi

import (
	"net/http"
	"time"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/middleware"
)

// setAuthCookies issues the refresh cookie and a fresh CSRF cookie, both
// living maxAge seconds. The refresh cookie is HttpOnly and scoped to the
// token endpoints; the CSRF cookie stays readable so the client can echo it
// in X-XSRF-TOKEN.
func setAuthCookies(w http.ResponseWriter, cfg goTasks.Config, refreshToken, csrf string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieRefreshToken,
		Value:    refreshToken,
		Path:     cfg.Cookie.RefreshPath,
		Domain:   cfg.Cookie.Domain,
		MaxAge:   maxAge,
		Secure:   cfg.Cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	setCSRFCookie(w, cfg, csrf, maxAge)
}

// remainingMaxAge is the cookie Max-Age matching a session that ends at
// expiresAt. A session that is still valid always gets at least one second.
func remainingMaxAge(expiresAt, now time.Time) int {
	secs := int(expiresAt.Sub(now) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func setCSRFCookie(w http.ResponseWriter, cfg goTasks.Config, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieCSRF,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Cookie.Domain,
		MaxAge:   maxAge,
		Secure:   cfg.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuthCookies expires both cookies with the attributes they were set with.
func clearAuthCookies(w http.ResponseWriter, cfg goTasks.Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieRefreshToken,
		Path:     cfg.Cookie.RefreshPath,
		Domain:   cfg.Cookie.Domain,
		MaxAge:   -1,
		Secure:   cfg.Cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	setCSRFCookie(w, cfg, "", -1)
}
