package server

import (
	"net/http"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/server/handlers"
)

// registerRoutes registers the proxy surface and the management surface.
// Infrastructure routes are reserved paths; a service named "health" or
// "keys" is still reachable under /proxy/.
func (s *Server) registerRoutes() {
	// Proxy surface. Every method is forwarded as-is.
	s.router.HandleFunc("/proxy/{service}", s.proxyHandler)
	s.router.HandleFunc("/proxy/{service}/*", s.proxyHandler)

	// Gateway health and metadata
	s.router.Get("/health", s.deps.Health.HealthHandler)
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	// Credential management
	keys := handlers.NewKeyHandlers(s.deps.Keys, s.deps.DefaultPerMinute, s.deps.DefaultPerHour)
	s.router.Get("/keys", keys.List)
	s.router.Post("/keys", keys.Create)
	s.router.Delete("/keys/{id}", keys.Delete)

	// Service registration and downstream health
	services := handlers.NewServiceHandlers(s.deps.Services, s.deps.Prober)
	s.router.Get("/services", services.List)
	s.router.Post("/services", services.Create)
	s.router.Get("/services/status", services.Status)
	s.router.Delete("/services/{service}", services.Delete)
	s.router.Get("/services/{service}/health", services.Health)

	// Audit surface
	logs := handlers.NewLogHandlers(s.deps.Audit)
	s.router.Get("/logs", logs.List)
	s.router.Get("/stats", logs.Stats)

	s.registerAdminRoutes()
}

// registerAdminRoutes exposes the signal endpoint (reload, shutdown) when an
// admin token is configured. Without KEYGATE_ADMIN_TOKEN the endpoint stays
// off entirely.
func (s *Server) registerAdminRoutes() {
	adminToken := os.Getenv("KEYGATE_ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no KEYGATE_ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}

func (s *Server) proxyHandler(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	rest := chi.URLParam(r, "*")
	s.deps.Pipeline.Handle(w, r, service, rest)
}
