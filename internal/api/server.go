package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"implregistry/internal/metrics"
	"implregistry/internal/models"
	"implregistry/internal/storage"
)

// Registry is the read side of the implementation registry
type Registry interface {
	GetTypeHash(name string) models.TypeKey
	GetLatestImplementation(ctx context.Context, name string) (models.ImplementationRecord, error)
	GetImplementationByVersion(ctx context.Context, name string, version uint32) (models.ImplementationRecord, error)
	ContractType(ctx context.Context, key models.TypeKey) (models.ContractType, error)
	ContractTypes(ctx context.Context) ([]models.ContractType, error)
	Versions(ctx context.Context, name string) ([]models.ImplementationRecord, error)
}

// Factory is the read side of the clone factory
type Factory interface {
	Address() models.Address
	Config(ctx context.Context) (models.FactoryConfig, error)
	PredictCloneAddress(salt models.Salt, template models.Address) (models.Address, error)
}

// Backend is everything the handlers read from
type Backend struct {
	Registry Registry
	Factory  Factory
	Store    storage.Store

	// Built-in templates by name, accepted wherever a template address is
	Templates map[string]models.Address
}

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks, and the read-only registry API
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	backend    Backend
	port       int
}

// NewServer creates a new API server instance
func NewServer(port int, backend Backend) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		backend: backend,
		port:    port,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Register all HTTP routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Registry endpoints
	s.mux.HandleFunc("/types", s.getOnly(s.handleListTypes))
	s.mux.HandleFunc("/types/", s.getOnly(s.handleTypeRoutes))

	// Factory endpoints
	s.mux.HandleFunc("/factory", s.getOnly(s.handleFactory))
	s.mux.HandleFunc("/factory/predict", s.getOnly(s.handlePredict))

	// Audit log
	s.mux.HandleFunc("/events", s.getOnly(s.handleEvents))
}

// Handler returns the routes wrapped with request instrumentation
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mux.ServeHTTP(w, r)
		metrics.APIRequestDuration.WithLabelValues(routeLabel(r.URL.Path)).Observe(time.Since(start).Seconds())
	})
}

// handleTypeRoutes routes type sub-endpoints (with trailing slash)
func (s *Server) handleTypeRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/types/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		s.sendError(w, "Type name required", http.StatusBadRequest)
		return
	}
	name := parts[0]

	switch {
	// GET /types/{name}
	case len(parts) == 1:
		s.handleGetType(w, r, name)

	// GET /types/{name}/latest
	case len(parts) == 2 && parts[1] == "latest":
		s.handleLatest(w, r, name)

	// GET /types/{name}/hash
	case len(parts) == 2 && parts[1] == "hash":
		s.handleTypeHash(w, r, name)

	// GET /types/{name}/versions
	case len(parts) == 2 && parts[1] == "versions":
		s.handleVersions(w, r, name)

	// GET /types/{name}/versions/{version}
	case len(parts) == 3 && parts[1] == "versions":
		s.handleVersion(w, r, name, parts[2])

	default:
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
	}
}

// getOnly rejects every method but GET
func (s *Server) getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/types", "/factory", "/events"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}

func routeLabel(path string) string {
	switch {
	case path == "/":
		return "/"
	case strings.HasPrefix(path, "/types/"):
		return "/types/{name}"
	case strings.HasPrefix(path, "/factory/"):
		return "/factory/predict"
	}
	switch path {
	case "/health", "/metrics", "/types", "/factory", "/events":
		return path
	}
	return "other"
}
