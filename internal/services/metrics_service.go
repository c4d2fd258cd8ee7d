package services

import (
	"context"
	"strconv"
	"sync"

	"implregistry/internal/metrics"
	"implregistry/internal/models"
)

// MetricsService turns committed events into Prometheus metrics
type MetricsService struct {
	mu     sync.Mutex
	latest map[string]uint32
}

// NewMetricsService creates a MetricsService
func NewMetricsService() *MetricsService {
	return &MetricsService{latest: make(map[string]uint32)}
}

// Process updates the collectors for one event
func (s *MetricsService) Process(ctx context.Context, event *models.Event) error {
	metrics.EventsEmitted.WithLabelValues(string(event.Kind)).Inc()

	switch event.Kind {
	case models.EventContractTypeAdded:
		metrics.ContractTypes.Inc()

	case models.EventImplementationAdded:
		name := event.Attrs["name"]
		metrics.ImplementationsAdded.WithLabelValues(name).Inc()

		version, err := strconv.ParseUint(event.Attrs["version"], 10, 32)
		if err != nil {
			return err
		}
		s.observeVersion(name, uint32(version))

	case models.EventCloneCreated:
		metrics.ClonesCreated.Inc()
	}
	return nil
}

// FlushCall counts one committed call
func (s *MetricsService) FlushCall(ctx context.Context) error {
	metrics.CallsCommitted.Inc()
	return nil
}

// LatestVersion returns the highest version observed for a type
func (s *MetricsService) LatestVersion(name string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[name]
}

func (s *MetricsService) observeVersion(name string, version uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version > s.latest[name] {
		s.latest[name] = version
		metrics.LatestVersion.WithLabelValues(name).Set(float64(version))
	}
}

// Name returns the service name
func (s *MetricsService) Name() string {
	return "MetricsService"
}
