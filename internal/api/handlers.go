package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"implregistry/internal/metrics"
	"implregistry/internal/models"
	"implregistry/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service":     "Implementation Registry",
		"version":     "1.0.0",
		"description": "Versioned implementation registry and deterministic clone factory",
		"endpoints": map[string]string{
			"GET /":                                "This page - Service information",
			"GET /health":                          "Health check endpoint",
			"GET /metrics":                         "Prometheus metrics for monitoring",
			"GET /types":                           "List all contract types",
			"GET /types/{name}":                    "Get a contract type",
			"GET /types/{name}/hash":               "Get the type key of a name",
			"GET /types/{name}/latest":             "Get the latest implementation",
			"GET /types/{name}/versions":           "List every implementation of a type",
			"GET /types/{name}/versions/{version}": "Get one implementation by version",
			"GET /factory":                         "Get the factory configuration",
			"GET /factory/predict?salt=&template=": "Predict a clone address",
			"GET /events?after=&limit=&kind=":      "Page through the audit log",
		},
	}

	s.sendJSON(w, info)
}

// handleHealth returns health status
// GET /health - Pings the store
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if err := s.backend.Store.Ping(r.Context()); err != nil {
		slog.Error("Health check failed", "error", err)
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"service":   "implregistry",
	})
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// REGISTRY ENDPOINTS
// =============================================================================

// GET /types
func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.backend.Registry.ContractTypes(r.Context())
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	resp := models.ContractTypeListResponse{
		Types: make([]models.ContractTypeResponse, len(types)),
		Total: len(types),
	}
	for i, ct := range types {
		resp.Types[i] = typeResponse(ct)
	}
	s.sendJSON(w, resp)
}

// GET /types/{name}
func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request, name string) {
	ct, err := s.backend.Registry.ContractType(r.Context(), s.backend.Registry.GetTypeHash(name))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, typeResponse(ct))
}

// GET /types/{name}/hash - answers for unknown names too
func (s *Server) handleTypeHash(w http.ResponseWriter, r *http.Request, name string) {
	s.sendJSON(w, models.TypeHashResponse{
		Name:    name,
		TypeKey: s.backend.Registry.GetTypeHash(name),
	})
}

// GET /types/{name}/latest
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request, name string) {
	rec, err := s.backend.Registry.GetLatestImplementation(r.Context(), name)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, models.NewImplementationResponse(name, rec))
}

// GET /types/{name}/versions
func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request, name string) {
	records, err := s.backend.Registry.Versions(r.Context(), name)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	resp := models.VersionListResponse{
		Name:     name,
		Versions: make([]models.ImplementationResponse, len(records)),
	}
	for i, rec := range records {
		resp.Versions[i] = models.NewImplementationResponse(name, rec)
	}
	s.sendJSON(w, resp)
}

// GET /types/{name}/versions/{version}
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request, name, raw string) {
	version, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		s.sendError(w, "Version must be an unsigned 32-bit integer", http.StatusBadRequest)
		return
	}

	rec, err := s.backend.Registry.GetImplementationByVersion(r.Context(), name, uint32(version))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, models.NewImplementationResponse(name, rec))
}

// =============================================================================
// FACTORY ENDPOINTS
// =============================================================================

// GET /factory
func (s *Server) handleFactory(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.backend.Factory.Config(r.Context())
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	resp := models.FactoryResponse{
		Factory:     s.backend.Factory.Address(),
		Initialized: cfg.Initialized,
		Templates:   s.backend.Templates,
	}
	if !cfg.Implementation.IsZero() {
		impl := cfg.Implementation
		resp.Implementation = &impl
	}
	s.sendJSON(w, resp)
}

// GET /factory/predict?salt=<hex>&template=<address or template name>
// An omitted template selects the factory's current implementation
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	rawSalt := query.Get("salt")
	if rawSalt == "" {
		s.sendError(w, "salt is required", http.StatusBadRequest)
		return
	}
	salt, err := models.ParseHash32(rawSalt)
	if err != nil {
		s.sendError(w, "salt must be 32 bytes of hex", http.StatusBadRequest)
		return
	}

	var template models.Address
	switch raw := query.Get("template"); {
	case raw == "":
		cfg, err := s.backend.Factory.Config(r.Context())
		if err != nil {
			s.sendDomainError(w, err)
			return
		}
		template = cfg.Implementation
	default:
		if named, ok := s.backend.Templates[raw]; ok {
			template = named
		} else if template, err = models.ParseAddress(raw); err != nil {
			s.sendDomainError(w, err)
			return
		}
	}

	addr, err := s.backend.Factory.PredictCloneAddress(salt, template)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendJSON(w, models.PredictResponse{
		Factory:  s.backend.Factory.Address(),
		Template: template,
		Salt:     salt,
		Address:  addr,
	})
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// GET /events?after=0&limit=100&kind=CloneCreated
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := models.EventFilter{
		Kind:  models.EventKind(query.Get("kind")),
		Limit: defaultEventLimit,
	}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.sendError(w, "after must be an unsigned integer", http.StatusBadRequest)
			return
		}
		filter.AfterSeq = after
	}
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= maxEventLimit {
			filter.Limit = parsed
		}
	}

	var events []models.Event
	err := s.backend.Store.View(r.Context(), func(tx storage.Tx) error {
		var err error
		events, err = tx.Events(r.Context(), filter)
		return err
	})
	if err != nil {
		slog.Error("Failed to list events", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := models.EventListResponse{Events: events, Next: filter.AfterSeq}
	if resp.Events == nil {
		resp.Events = []models.Event{}
	}
	if n := len(events); n > 0 {
		resp.Next = events[n-1].Seq
	}
	s.sendJSON(w, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func typeResponse(ct models.ContractType) models.ContractTypeResponse {
	return models.ContractTypeResponse{
		Name:          ct.Name,
		TypeKey:       ct.Key,
		LatestVersion: ct.LatestVersion,
	}
}

// sendJSON sends a 200 JSON response
func (s *Server) sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendDomainError maps an error kind to a status code
func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	kind := models.ErrorKind(err)
	metrics.APIErrors.WithLabelValues(kind).Inc()

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrTypeDoesNotExist),
		errors.Is(err, models.ErrNoImplementations),
		errors.Is(err, models.ErrVersionDoesNotExist):
		code = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidAddress),
		errors.Is(err, models.ErrInvalidTypeName),
		errors.Is(err, models.ErrInvalidVersion):
		code = http.StatusBadRequest
	}

	message := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("API request failed", "error", err)
		message = "Internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Kind:    kind,
		Code:    code,
	})
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
