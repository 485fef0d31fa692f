package port

import (
	"context"

	"github.com/arklim/credential-gate/internal/core/domain"
)

// EventPublisher publishes account events to the message bus.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishAccountStatusChanged(ctx context.Context, event domain.AccountStatusChangedEvent) error
	PublishAccountPasswordChanged(ctx context.Context, event domain.AccountPasswordChangedEvent) error
}
