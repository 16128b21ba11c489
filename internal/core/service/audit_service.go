package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cliptube/account-service/internal/core/domain"
	"github.com/cliptube/account-service/internal/core/ports"
)

type auditWriter struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditWriter returns the AuditSink that persists auth activity events.
// It is driven by the dispatcher workers, off the request path.
func NewAuditWriter(repo ports.AuditRepository, log zerolog.Logger) ports.AuditSink {
	return &auditWriter{repo: repo, log: log}
}

// Process persists a single audit event.
func (w *auditWriter) Process(ctx context.Context, event domain.AuditEvent) error {
	if err := w.repo.Insert(ctx, &event); err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}

	w.log.Debug().
		Str("user_id", event.UserID).
		Str("action", string(event.Action)).
		Str("outcome", event.Outcome).
		Msg("audit event recorded")

	return nil
}
