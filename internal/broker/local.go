package broker

import (
	"context"

	"bike-marketplace/internal/util"

	"go.uber.org/zap"
)

// LocalSink delivers events to an in-process handler using the same wire
// encoding as the Kafka producer. Used when no broker is configured.
type LocalSink struct {
	handler MessageHandler
	logger  *zap.Logger
}

// NewLocalSink creates a sink that hands each event to handler synchronously
func NewLocalSink(handler MessageHandler) *LocalSink {
	return &LocalSink{handler: handler, logger: util.ComponentLogger("local-broker")}
}

// PublishEvent encodes the event and runs the handler. Handler errors are
// logged, not returned, matching a fire-and-forget broker write.
func (s *LocalSink) PublishEvent(ctx context.Context, key string, event interface{}) error {
	msg, err := encodeEvent(key, event)
	if err != nil {
		return err
	}

	if err := s.handler(ctx, msg); err != nil {
		s.logger.Error("Local event handler failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}
