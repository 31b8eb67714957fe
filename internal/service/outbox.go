package service

import (
	"context"
	"time"

	"bike-marketplace/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// outbox collects work raised inside a transaction that must only happen
// after commit: event publication and success metrics.
type outbox []func(ctx context.Context, pub EventPublisher) error

func (o *outbox) add(fn func(ctx context.Context, pub EventPublisher) error) {
	*o = append(*o, fn)
}

// after records a side effect that cannot fail
func (o *outbox) after(fn func()) {
	o.add(func(context.Context, EventPublisher) error {
		fn()
		return nil
	})
}

func (o outbox) flush(ctx context.Context, pub EventPublisher, logger *zap.Logger) {
	for _, fn := range o {
		if err := fn(ctx, pub); err != nil {
			logger.Error("Failed to publish event", zap.Error(err))
		}
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}
