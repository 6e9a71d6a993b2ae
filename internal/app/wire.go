package app

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sessionguard/platform/internal/auth"
	"github.com/sessionguard/platform/internal/geo"
	"github.com/sessionguard/platform/internal/guard"
	"github.com/sessionguard/platform/internal/handler"
	adminhandler "github.com/sessionguard/platform/internal/handler/admin"
	"github.com/sessionguard/platform/internal/metrics"
	"github.com/sessionguard/platform/internal/policy"
	"github.com/sessionguard/platform/internal/provider"
	"github.com/sessionguard/platform/internal/repository"
	"github.com/sessionguard/platform/internal/service"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Store    repository.Store
	Identity provider.IdentityProvider
	// Credentials enables POST /admin/users; nil when users live in an
	// external provider.
	Credentials service.CredentialIssuer
	Locker      guard.Locker
	Geo         geo.Locator
	Policy      policy.Config
	Metrics     *metrics.Metrics
	JWTMgr      *auth.JWTManager
	Logger      *slog.Logger

	// LoginLimiter throttles /auth/login per client IP; nil disables it.
	LoginLimiter *guard.RateLimiter
	// TrustedProxies may set the client address through X-Forwarded-For.
	TrustedProxies []netip.Prefix
	CORSOrigins    []string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	// Services
	sessionSvc := service.NewSessionService(service.SessionDeps{
		Store:    deps.Store,
		Identity: deps.Identity,
		Policy:   deps.Policy,
		Locker:   deps.Locker,
		Geo:      deps.Geo,
		Metrics:  m,
		Logger:   logger,
	})
	adminSvc := service.NewAdminService(deps.Store, deps.Credentials, logger)

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	userAdmin := adminhandler.NewUserAdminHandler(adminSvc)

	loginLimiter := deps.LoginLimiter
	if loginLimiter == nil {
		loginLimiter = guard.NewRateLimiter(0, time.Minute)
	}
	onLimited := func() { m.Logins.WithLabelValues(metrics.OutcomeRateLimited).Inc() }

	// Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health and metrics
	r.Get("/health", handler.HealthHandler(deps.Store))
	r.Handle("/metrics", m.Handler())

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)

		// Session endpoints
		r.Route("/auth", func(r chi.Router) {
			r.With(handler.RateLimit(loginLimiter, deps.TrustedProxies, onLimited)).Post("/login", sessionHandler.Login)
			r.Post("/heartbeat", sessionHandler.Heartbeat)
			r.Post("/logout", sessionHandler.Logout)
		})

		// Admin (operator JWT)
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AuthenticateAdmin(deps.JWTMgr))
			r.Use(auth.RequireRole(auth.AllAdminRoles()...))

			r.Route("/users", func(r chi.Router) {
				r.With(auth.RequireRole(auth.WriteRoles()...)).Post("/", userAdmin.CreateUser)
				r.Get("/{id}", userAdmin.GetUser)
				r.Get("/{id}/anomalies", userAdmin.ListAnomalies)
				r.Get("/{id}/sessions", userAdmin.ListSessions)
			})
		})
	})

	return r
}
