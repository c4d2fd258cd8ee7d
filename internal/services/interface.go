package services

import (
	"context"

	"implregistry/internal/models"
)

// Service consumes events after the call that emitted them committed
type Service interface {
	// Process handles a single event
	// An error is logged by the caller; it never undoes the committed call
	// Note: events are shared between services and must not be modified
	Process(ctx context.Context, event *models.Event) error

	// Name returns the service name for logging
	Name() string
}

// Flushable is an optional interface for services that accumulate data per call
// Services implementing this interface will have FlushCall called after the last event of a call
type Flushable interface {
	FlushCall(ctx context.Context) error
}
