package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/handlers"
	"github.com/ramonehamilton/CHUNI-Companion/internal/api/response"
	"github.com/ramonehamilton/CHUNI-Companion/internal/version"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (no versioning)
	s.router.Get("/health", s.healthCheck)

	// WebSocket endpoint; ?user=NAME limits player events
	s.router.Get("/ws", s.wsHub.ServeWs)

	s.router.Route("/api/v1", func(r chi.Router) {
		systemHandler := handlers.NewSystemHandler(s.deps.Metrics, s.deps.Runner, s.deps.Client)
		r.Route("/system", func(r chi.Router) {
			r.Get("/version", systemHandler.GetVersion)
			r.Get("/metrics", systemHandler.GetMetrics)
		})

		if s.deps.Planner != nil {
			s.plannerRoutes(r)
		}

		if s.deps.Client != nil {
			proxyHandler := handlers.NewProxyHandler(s.deps.Client, s.deps.TokenResolver, s.config.ProxyTimeout)
			r.Get("/chunirec/proxy", proxyHandler.Proxy)
		}
	})
}

func (s *Server) plannerRoutes(r chi.Router) {
	p := s.deps.Planner

	playerHandler := handlers.NewPlayerHandler(p)
	simulationHandler := handlers.NewSimulationHandler(p)
	r.Route("/players/{user}", func(r chi.Router) {
		r.Get("/", playerHandler.Get)
		r.Get("/exclusions", playerHandler.GetExclusions)
		r.Put("/exclusions", playerHandler.UpdateExclusions)
		r.Get("/simulations", simulationHandler.ListByUser)
	})

	r.Route("/simulations", func(r chi.Router) {
		r.Post("/", simulationHandler.Create)
		r.Post("/custom", simulationHandler.CreateCustom)
		r.Get("/{id}", simulationHandler.Get)
		r.Get("/{id}/chart", simulationHandler.Chart)
		r.Get("/{id}/export", simulationHandler.Export)
	})

	dataHandler := handlers.NewDataHandler(p)
	r.Route("/data", func(r chi.Router) {
		r.Get("/new-songs", dataHandler.GetNewSongs)
		r.Get("/overrides", dataHandler.GetOverrides)
	})
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "chuni-companion-api",
		"version":   version.GetVersion(),
		"wsClients": s.wsHub.ClientCount(),
	})
}
