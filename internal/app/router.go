package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/custodia-app/custodia/internal/audit"
	"github.com/custodia-app/custodia/internal/auth"
	"github.com/custodia-app/custodia/internal/observability"
	"github.com/custodia-app/custodia/internal/rbac"
	"github.com/custodia-app/custodia/internal/users"
	"github.com/custodia-app/custodia/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Auth         *auth.Middleware
	UsersHandler *users.Handler
	RBACHandler  *rbac.Handler
	AuditHandler *audit.Handler
	JobsHandler  *jobs.Handler
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with Custodia defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Auth:    params.Auth,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	loginLimit := 10
	if params.Config != nil && params.Config.LoginRateLimit > 0 {
		loginLimit = params.Config.LoginRateLimit
	}

	r.Route("/api", func(api chi.Router) {
		// Tighter limit on credential guessing.
		loginLimiter := httprate.Limit(loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
		api.Route("/usuarios", func(sub chi.Router) {
			params.UsersHandler.MountRoutes(sub, loginLimiter)
		})
		api.Route("/roles", params.RBACHandler.MountRoleRoutes)
		api.Route("/permisos", params.RBACHandler.MountPermissionRoutes)
		api.Route("/usuarios_roles", params.RBACHandler.MountUserRoleRoutes)
		api.Route("/roles_permisos", params.RBACHandler.MountRolePermissionRoutes)
		api.Route("/permisos_efectivos", params.RBACHandler.MountEffectiveRoutes)
		api.Route("/auditoria", params.AuditHandler.MountRoutes)
		if params.JobsHandler != nil {
			api.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
