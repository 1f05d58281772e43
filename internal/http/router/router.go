// Package router arma la tabla de rutas chi del servicio.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/accesscore/internal/auth"
	httperrors "github.com/dropDatabas3/accesscore/internal/http/errors"
	"github.com/dropDatabas3/accesscore/internal/http/handlers"
	mw "github.com/dropDatabas3/accesscore/internal/http/middlewares"
	"github.com/dropDatabas3/accesscore/internal/rate"
	"github.com/dropDatabas3/accesscore/internal/rbac"
)

// Deps contiene lo que necesita el router.
type Deps struct {
	Auth auth.Service
	RBAC rbac.Service

	RatePolicy rate.Policy
	// Limiter nil desactiva el rate limiting.
	Limiter rate.Limiter

	Health  *handlers.HealthController
	Metrics http.Handler // nil = sin /metrics

	// AdminRoles pueden operar /v1/rbac.
	AdminRoles []string
	Now        func() time.Time
}

// New retorna el handler raíz.
func New(d Deps) http.Handler {
	if len(d.AdminRoles) == 0 {
		d.AdminRoles = []string{rbac.RoleAdmin, rbac.RoleSuperAdmin}
	}
	authCtl := handlers.NewAuthController(d.Auth, d.Now)
	rbacCtl := handlers.NewRBACController(d.RBAC)
	requireAuth := mw.RequireAuth(d.Auth.Authenticate)

	r := chi.NewRouter()
	r.Use(mw.Adapt(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithClientIP(d.RatePolicy),
		mw.WithLogging(),
		mw.WithMetrics(),
	)...)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if d.Health != nil {
		r.Get("/healthz", d.Health.Health)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.WithRateLimit(d.RatePolicy, d.Limiter))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authCtl.Login)
			r.Post("/register", authCtl.Register)
			r.Post("/refresh", authCtl.Refresh)
			r.With(requireAuth).Post("/logout", authCtl.Logout)
		})

		r.Route("/rbac", func(r chi.Router) {
			r.Use(requireAuth, mw.RequireRole(d.AdminRoles...))
			r.Post("/users/{userID}/roles", rbacCtl.AssignRole)
			r.Delete("/users/{userID}/roles/{roleID}", rbacCtl.RemoveRole)
			// editar permisos de un rol es solo de SUPER_ADMIN
			r.With(mw.RequireRole(rbac.RoleSuperAdmin)).Put("/roles/{roleID}/permissions/{permissionID}", rbacCtl.AddPermission)
			r.With(mw.RequireRole(rbac.RoleSuperAdmin)).Delete("/roles/{roleID}/permissions/{permissionID}", rbacCtl.RemovePermission)
			r.Get("/roles", rbacCtl.ListRoles)
			r.Get("/permissions", rbacCtl.ListPermissions)
		})
	})
	return r
}
