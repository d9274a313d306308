package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"token-auth-server/internal/config"
	"token-auth-server/internal/handler"
	"token-auth-server/internal/metrics"
	"token-auth-server/internal/middleware"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(r *http.Request) error

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	health HealthFunc,
	appMetrics *metrics.Metrics,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	if appMetrics != nil {
		r.Use(appMetrics.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if appMetrics != nil {
		r.Method(http.MethodGet, "/metrics", appMetrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", authHandler.Register)
			auth.Post("/login", authHandler.Login)
			auth.Post("/refresh", authHandler.Refresh)

			auth.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Delete("/logout", authHandler.Logout)
				protected.Get("/me", authHandler.Me)
				protected.Get("/expired", authHandler.Expired)
			})
		})
	})

	return r
}
