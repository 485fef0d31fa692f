package port

import (
	"context"
	"time"

	"github.com/arklim/credential-gate/internal/core/domain"
)

// AuditRepository is the append-only audit log.
type AuditRepository interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
	// List returns events newest-first.
	List(ctx context.Context) ([]domain.AuditEvent, error)
	Count(ctx context.Context) (int, error)
	// FailureDates returns the distinct UTC calendar dates (domain.FailureDateLayout)
	// of failed login events for identifier at or after since, newest first.
	FailureDates(ctx context.Context, identifier string, since time.Time, limit int) ([]string, error)
}
