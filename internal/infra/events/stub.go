package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

// LogPublisher logs events instead of sending them to Kafka. Used when no
// broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher writing events to logger.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event domain.Event) {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	p.logger.Info("event published",
		zap.String("event_type", string(event.Type)),
		zap.String("key", event.Key),
		zap.Time("occurred_at", at.UTC()),
		zap.Any("data", event.Data),
	)
}

// Close is a no-op.
func (p *LogPublisher) Close() {}
