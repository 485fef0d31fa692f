package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when kafka.enabled is false.
type StubPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*StubPublisher)(nil)

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, identifier string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("identifier", logger.MaskIdentifier(identifier)),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("stub event published", append(base, fields...)...)
}

// PublishAccountRegistered logs account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(EventAccountRegistered, event.Identifier, event.RegisteredAt,
		zap.String("status", string(event.Status)),
	)
	return nil
}

// PublishAccountStatusChanged logs account.status_changed events.
func (p *StubPublisher) PublishAccountStatusChanged(_ context.Context, event domain.AccountStatusChangedEvent) error {
	p.logEvent(EventAccountStatusChanged, event.Identifier, event.ChangedAt,
		zap.String("from", string(event.From)),
		zap.String("to", string(event.To)),
		zap.String("cause", event.Cause),
	)
	return nil
}

// PublishAccountPasswordChanged logs account.password_changed events.
func (p *StubPublisher) PublishAccountPasswordChanged(_ context.Context, event domain.AccountPasswordChangedEvent) error {
	p.logEvent(EventAccountPasswordChanged, event.Identifier, event.ChangedAt,
		zap.String("changed_by", event.ChangedBy),
	)
	return nil
}
