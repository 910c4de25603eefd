package httpapi

import (
	"net/http"
	"time"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/middleware"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// Signup handles POST /users.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeStrict(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.engine.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.startSession(w, r, res)
}

// Login handles POST /users/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeStrict(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.startSession(w, r, res)
}

// startSession answers a successful signup or login: profile body, access
// token header and both cookies.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, res *goTasks.AuthResult) {
	csrf, err := h.engine.GenerateCSRFToken()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setAuthCookies(w, h.cfg, res.RefreshToken, csrf, int(h.cfg.Session.TTL.Seconds()))
	w.Header().Set(middleware.HeaderAccessToken, res.AccessToken)
	writeJSON(w, http.StatusOK, res.User)
}

// Refresh handles POST /auth/token/refresh. The session and CSRF checks ran
// in middleware; the refresh cookie is re-sent unchanged with a new CSRF value
// and a Max-Age that ends with the session.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.fail(w, r, goTasks.ErrSessionNotFound)
		return
	}

	tok, err := h.engine.RefreshAccessToken(r.Context(), s.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	csrf, err := h.engine.GenerateCSRFToken()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setAuthCookies(w, h.cfg, s.RefreshToken, csrf, remainingMaxAge(s.ExpiresAt, time.Now()))
	w.Header().Set(middleware.HeaderAccessToken, tok)
	writeJSON(w, http.StatusOK, accessTokenResponse{AccessToken: tok})
}

// Logout handles POST /auth/token/logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.fail(w, r, goTasks.ErrSessionNotFound)
		return
	}

	if err := h.engine.Logout(r.Context(), s.UserID, s.RefreshToken); err != nil {
		h.fail(w, r, err)
		return
	}
	clearAuthCookies(w, h.cfg)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /users/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	u, err := h.engine.User(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Public())
}

// ChangePassword handles PUT /users/me/password. Every session is revoked,
// including the caller's, so the cookies are cleared as well.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeStrict(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	clearAuthCookies(w, h.cfg)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMe handles DELETE /users/me: owned lists and tasks go first, then
// the account itself.
func (h *Handlers) DeleteMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := middleware.UserIDFromContext(ctx)

	if _, err := h.engine.User(ctx, userID); err != nil {
		h.fail(w, r, err)
		return
	}

	n, err := h.tasks.DeleteOwner(ctx, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.DeleteAccount(ctx, userID); err != nil {
		h.fail(w, r, err)
		return
	}

	LoggerFrom(ctx).Info("account deleted", "user_id", userID, "lists", n)
	clearAuthCookies(w, h.cfg)
	w.WriteHeader(http.StatusNoContent)
}
