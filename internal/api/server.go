package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/handlers"
	"github.com/ramonehamilton/CHUNI-Companion/internal/api/websocket"
	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
	"github.com/ramonehamilton/CHUNI-Companion/internal/metrics"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
)

// Server represents the REST API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *Config
	logger     *slog.Logger

	// WebSocket hub for simulation and player events
	wsHub *websocket.Hub

	deps Deps
}

// Config holds configuration for the API server.
type Config struct {
	Host           string
	Port           int
	CORSOrigins    []string
	RequestTimeout time.Duration
	ProxyTimeout   time.Duration
	Logger         *slog.Logger
}

// DefaultConfig returns the default API server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:           "127.0.0.1",
		Port:           8080,
		CORSOrigins:    []string{"http://localhost:*", "http://127.0.0.1:*"},
		RequestTimeout: 60 * time.Second,
		ProxyTimeout:   25 * time.Second,
	}
}

// Deps are the services the routes are served from. Planner routes are
// only mounted when Planner is set, the proxy only when Client is set.
type Deps struct {
	Planner       handlers.Planner
	Client        *chunirec.Client
	Runner        *simulation.Runner
	Metrics       *metrics.PlannerMetrics
	TokenResolver handlers.TokenResolver
}

// NewServer creates a new API server.
func NewServer(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		wsHub: websocket.NewHubWithConfig(websocket.HubConfig{
			AllowedOrigins: wsOrigins(cfg.CORSOrigins),
			Logger:         logger,
		}),
		deps: deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// wsOrigins drops wildcard-port patterns, which only the CORS middleware
// understands. If that leaves nothing, any origin is accepted.
func wsOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		if !strings.Contains(o, "*") {
			out = append(out, o)
		}
	}
	return out
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.config.RequestTimeout))

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Content-Type enforcement for POST/PUT/PATCH only
	s.router.Use(jsonContentTypeMiddleware)
}

// jsonContentTypeMiddleware enforces application/json content-type for requests with bodies.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}
			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;") {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in a goroutine. Bind errors are
// returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}

	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.config.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the WebSocket hub and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Port returns the port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}

// WebSocketHub returns the WebSocket hub.
func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

// NewWebSocketObserver creates an observer that forwards simulation, player
// and data events to WebSocket clients. Register it with the dispatcher.
func (s *Server) NewWebSocketObserver() *websocket.WebSocketObserver {
	return websocket.NewWebSocketObserver(s.wsHub, "simulation:", "player:", "data:")
}
