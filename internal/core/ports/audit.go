package ports

import (
	"context"

	"github.com/cliptube/account-service/internal/core/domain"
)

// AuditRecorder accepts audit events for asynchronous persistence. Record must
// not block the request path.
type AuditRecorder interface {
	Record(event domain.AuditEvent)
}

// AuditSink processes one audit event; implemented by the audit writer and
// driven by the dispatcher workers.
type AuditSink interface {
	Process(ctx context.Context, event domain.AuditEvent) error
}

// AuditRepository persists and queries the auth activity trail.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
	FindByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)
}
