package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/crypto"
)

// WebhookIngester applies a decoded notification
type WebhookIngester interface {
	IngestWebhook(ctx context.Context, notification *entity.WebhookNotification) (*ReconcileResult, error)
}

// WebhookDelivery is one verified callback as received over HTTP
type WebhookDelivery struct {
	Body       []byte
	IPAddress  string
	ReceivedAt time.Time
}

// WebhookService logs every accepted delivery before ingesting it so failed
// deliveries can be replayed later
type WebhookService struct {
	events   repository.WebhookEventRepository
	ingester WebhookIngester
	logger   *zap.Logger
	now      func() time.Time
}

// NewWebhookService creates a new webhook service
func NewWebhookService(events repository.WebhookEventRepository, ingester WebhookIngester, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		events:   events,
		ingester: ingester,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces time.Now
func (s *WebhookService) WithClock(now func() time.Time) *WebhookService {
	s.now = now
	return s
}

// HandleDelivery stores and processes one delivery. A redelivery of an already
// processed body is acknowledged without touching the payment again.
func (s *WebhookService) HandleDelivery(ctx context.Context, delivery *WebhookDelivery) (*ReconcileResult, error) {
	var notification entity.WebhookNotification
	if err := json.Unmarshal(delivery.Body, &notification); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidWebhookPayload, err)
	}
	if notification.PaymentIdentifier() == "" {
		return nil, domainErrors.ErrMissingPaymentIdentifier
	}

	eventID := crypto.SHA256Hex(delivery.Body)
	receivedAt := delivery.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	event := &model.QrisWebhookEvent{
		EventID:    eventID,
		QrID:       optional(notification.PaymentIdentifier()),
		StatusCode: optional(notification.TransactionStatusCode),
		Payload:    datatypes.JSON(delivery.Body),
		IPAddress:  optional(delivery.IPAddress),
		ReceivedAt: receivedAt,
	}

	saved, err := s.events.SaveEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if !saved {
		existing, err := s.events.GetEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ProcessingStatus == model.WebhookStatusCompleted {
			s.logger.Info("Duplicate webhook delivery ignored", zap.String("event_id", eventID))
			return nil, nil
		}
	}

	return s.process(ctx, eventID, &notification)
}

// ReplayPending re-ingests stored deliveries that are pending or due for retry
func (s *WebhookService) ReplayPending(ctx context.Context, limit int) (processed, failed int, err error) {
	events, err := s.events.GetPendingEvents(ctx, s.now(), limit)
	if err != nil {
		return 0, 0, err
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}

		var notification entity.WebhookNotification
		if err := json.Unmarshal(event.Payload, &notification); err != nil {
			failed++
			s.markFailed(ctx, event.EventID, fmt.Errorf("%w: %v", domainErrors.ErrInvalidWebhookPayload, err))
			continue
		}

		if _, err := s.process(ctx, event.EventID, &notification); err != nil {
			failed++
			continue
		}
		processed++
	}

	s.logger.Info("Webhook replay finished",
		zap.Int("processed", processed),
		zap.Int("failed", failed))

	return processed, failed, nil
}

func (s *WebhookService) process(ctx context.Context, eventID string, notification *entity.WebhookNotification) (*ReconcileResult, error) {
	result, err := s.ingester.IngestWebhook(ctx, notification)
	if err != nil {
		s.markFailed(ctx, eventID, err)
		s.logger.Warn("Webhook processing failed",
			zap.String("event_id", eventID),
			zap.String("qr_id", notification.PaymentIdentifier()),
			zap.Error(err))
		return nil, err
	}

	if err := s.events.MarkProcessed(ctx, eventID); err != nil {
		s.logger.Error("Failed to mark webhook event as processed",
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	s.logger.Info("Webhook processed",
		zap.String("event_id", eventID),
		zap.String("qr_id", result.Payment.QrID),
		zap.String("outcome", string(result.Outcome)),
		zap.String("status", result.Payment.Status.String()))

	return result, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (s *WebhookService) markFailed(ctx context.Context, eventID string, cause error) {
	if err := s.events.MarkFailed(ctx, eventID, cause); err != nil {
		s.logger.Error("Failed to mark webhook event as failed",
			zap.String("event_id", eventID),
			zap.Error(err))
	}
}
