package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/middleware"
	"github.com/MrEthical07/goTasks/tasks"
)

// DefaultMaxBodyBytes caps JSON request bodies when Options.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 1 << 20

// Deps are the services the handlers call into.
type Deps struct {
	Engine *goTasks.Engine
	Tasks  *tasks.Store
}

// Options configure the router.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // e.g. "/api"; empty mounts the routes at the root
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool
	MaxBodyBytes int64
	// Metrics is served at GET /metrics when set.
	Metrics http.Handler
	// Health backs GET /healthz. Nil always reports ok.
	Health func(context.Context) error
}

// NewRouter builds the HTTP handler with chi, the shared middleware stack and all routes.
func NewRouter(deps Deps, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}

	root := chi.NewRouter()
	if opts.TrustProxy {
		root.Use(chimw.RealIP)
	}
	root.Use(
		Recover(),
		RequestID(),
		Logging(logger),
		ClientIP(),
		MaxBody(maxBody),
	)
	if opts.Timeout > 0 {
		root.Use(Timeout(opts.Timeout))
	}

	h := NewHandlers(deps.Engine, deps.Tasks)
	if opts.BasePath != "" {
		h.cfg.Cookie.RefreshPath = path.Join(opts.BasePath, h.cfg.Cookie.RefreshPath)
	}

	root.Get("/healthz", healthz(opts.Health))
	if opts.Metrics != nil {
		root.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h)
	return root
}

// registerRoutes is the single place where REST endpoints are registered.
func registerRoutes(r chi.Router, h *Handlers) {
	e := h.engine

	// auth
	r.With(middleware.RateLimitAuth(e, goTasks.ScopeSignup)).Post("/users", h.Signup)
	r.With(middleware.RateLimitAuth(e, goTasks.ScopeLogin)).Post("/users/login", h.Login)
	r.Route("/auth/token", func(r chi.Router) {
		r.Use(middleware.RequireSession(e), middleware.RequireCSRF(e))
		r.With(middleware.RateLimitAuth(e, goTasks.ScopeRefresh)).Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
	})

	// account
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAccessToken(e))
		r.Get("/users/me", h.Me)
		r.Put("/users/me/password", h.ChangePassword)
		r.Delete("/users/me", h.DeleteMe)

		// lists
		r.Get("/lists", h.GetLists)
		r.Post("/lists", h.CreateList)
		r.Patch("/lists/{id}", h.UpdateList)
		r.Delete("/lists/{id}", h.DeleteList)

		// tasks
		r.Get("/lists/{listId}/tasks", h.GetTasks)
		r.Post("/lists/{listId}/tasks", h.CreateTask)
		r.Patch("/lists/{listId}/tasks/{taskId}", h.UpdateTask)
		r.Delete("/lists/{listId}/tasks/{taskId}", h.DeleteTask)
	})
}

func healthz(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				LoggerFrom(r.Context()).Warn("health check failed", slog.Any("err", err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
