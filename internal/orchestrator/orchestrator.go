package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"implregistry/internal/metrics"
	"implregistry/internal/models"
	"implregistry/internal/services"
)

// Orchestrator fans the events of every committed call out to the registered services
type Orchestrator struct {
	// calls are delivered one at a time and in commit order per publisher
	mu       sync.Mutex
	services []services.Service
}

// New creates a new Orchestrator with the given services
func New(services []services.Service) *Orchestrator {
	return &Orchestrator{
		services: services,
	}
}

// Publish runs the events of one committed call through all registered services
func (o *Orchestrator) Publish(ctx context.Context, events []*models.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	slog.Debug("Orchestrator: Publishing call",
		"events", len(events),
		"services_count", len(o.services),
	)

	for _, event := range events {
		for _, service := range o.services {
			if err := service.Process(ctx, event); err != nil {
				slog.Error("Service processing failed",
					"service", service.Name(),
					"seq", event.Seq,
					"kind", event.Kind,
					"error", err,
				)
				metrics.ErrorsTotal.WithLabelValues(service.Name()).Inc()
				// Continue with other services: the call already committed
			}
		}
	}

	for _, service := range o.services {
		flushable, ok := service.(services.Flushable)
		if !ok {
			continue
		}
		if err := flushable.FlushCall(ctx); err != nil {
			slog.Error("Service flush failed", "service", service.Name(), "error", err)
			metrics.ErrorsTotal.WithLabelValues(service.Name()).Inc()
		}
	}
}

// Services returns the list of registered services (for inspection/testing)
func (o *Orchestrator) Services() []services.Service {
	return o.services
}
