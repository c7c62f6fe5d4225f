package publisher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	"github.com/wekeepgrowing/qris-gateway/pkg/messaging"
)

// StatusPublisher sends payment status changes to a messaging topic keyed by qr id,
// so changes for one payment stay ordered on partitioned brokers.
type StatusPublisher struct {
	publisher messaging.Publisher
	topic     string
	logger    *zap.Logger
}

// NewStatusPublisher creates a new status change publisher
func NewStatusPublisher(publisher messaging.Publisher, topic string, logger *zap.Logger) *StatusPublisher {
	return &StatusPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// PublishStatusChange publishes one applied transition
func (p *StatusPublisher) PublishStatusChange(ctx context.Context, change *entity.StatusChange) error {
	if err := p.publisher.Publish(ctx, p.topic, change.QrID, change); err != nil {
		return fmt.Errorf("failed to publish status change for %s: %w", change.QrID, err)
	}

	p.logger.Debug("Status change published",
		zap.String("topic", p.topic),
		zap.String("qr_id", change.QrID),
		zap.String("status", change.Status.String()))

	return nil
}

// Close releases the underlying connection
func (p *StatusPublisher) Close() error {
	return p.publisher.Close()
}
