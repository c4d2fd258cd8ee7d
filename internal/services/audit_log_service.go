package services

import (
	"context"
	"log/slog"

	"implregistry/internal/models"

	"github.com/google/uuid"
)

// AuditLogService writes every committed event to a structured log
type AuditLogService struct {
	logger *slog.Logger

	// per-call summary, reset by FlushCall
	txID  uuid.UUID
	count int
}

// NewAuditLogService creates an AuditLogService. A nil logger selects slog.Default().
func NewAuditLogService(logger *slog.Logger) *AuditLogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogService{logger: logger}
}

// Process logs one event with its attributes
func (s *AuditLogService) Process(ctx context.Context, event *models.Event) error {
	args := []any{
		"seq", event.Seq,
		"tx_id", event.TxID,
		"kind", event.Kind,
		"emitter", event.Emitter,
	}
	for k, v := range event.Attrs {
		args = append(args, k, v)
	}
	s.logger.InfoContext(ctx, "AuditLog: event", args...)

	s.txID = event.TxID
	s.count++
	return nil
}

// FlushCall logs a summary of the call whose events were just processed
func (s *AuditLogService) FlushCall(ctx context.Context) error {
	if s.count > 0 {
		s.logger.DebugContext(ctx, "AuditLog: call committed", "tx_id", s.txID, "events", s.count)
	}
	s.txID = uuid.Nil
	s.count = 0
	return nil
}

// Name returns the service name
func (s *AuditLogService) Name() string {
	return "AuditLogService"
}
