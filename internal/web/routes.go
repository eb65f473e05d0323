package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	credentialsHandler := handlers.NewCredentialsHandler(s.service)
	auditHandler := handlers.NewAuditHandler(s.service)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/enroll", credentialsHandler.Enroll)
		r.Post("/verify", credentialsHandler.Verify)
		r.Post("/identify", credentialsHandler.Identify)

		r.Get("/credentials", credentialsHandler.List)
		r.Get("/credentials/{role}/{username}", credentialsHandler.Get)
		r.Get("/roles", credentialsHandler.Roles)

		r.Get("/audit", auditHandler.Get)
	})
}
