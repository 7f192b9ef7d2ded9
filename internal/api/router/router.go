package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/secwatch/internal/api/handlers"
	"github.com/pratik-mahalle/secwatch/internal/api/middleware"
	"github.com/pratik-mahalle/secwatch/internal/config"
	"github.com/pratik-mahalle/secwatch/internal/detector"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/pkg/metrics"
)

type Handlers struct {
	Health *handlers.HealthHandler
	Alert  *handlers.AlertHandler
}

// Options are the optional pieces of the router
type Options struct {
	// Monitor raises security alerts for every request when set
	Monitor *middleware.SecurityMonitor
	// Limiter rate limits the API when set
	Limiter *middleware.RateLimiter
	// Upstream serves every request no route matches
	Upstream http.Handler
	// ProxyTrust selects the X-Forwarded-For hops believed; nil trusts all
	ProxyTrust *detector.ProxyTrust
}

func New(cfg *config.Config, log *logger.Logger, h *Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware. The monitor sits outside Recovery so that a
	// recovered panic is observed as a 500.
	r.Use(middleware.RequestID())
	r.Use(middleware.ClientIP(opts.ProxyTrust))
	r.Use(middleware.Logger(log))
	r.Use(metrics.Middleware)
	if opts.Monitor != nil {
		r.Use(opts.Monitor.Handler)
	}
	r.Use(middleware.Recovery(log))

	// Own endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders(cfg.Server.Environment == "production"))

		r.Get("/healthz", h.Health.Healthz)
		r.Get("/readyz", h.Health.Readyz)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
			r.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.TokenCookie))
			if opts.Limiter != nil {
				r.Use(middleware.RateLimit(opts.Limiter))
			}

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", h.Alert.List)
				r.Post("/", h.Alert.Create)
				r.Post("/alertmanager", h.Alert.Alertmanager)
			})
		})
	})

	if opts.Upstream != nil {
		r.NotFound(opts.Upstream.ServeHTTP)
		r.MethodNotAllowed(opts.Upstream.ServeHTTP)
	}

	return r
}
