package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
)

type webhookEventRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookEventRepository creates a new QRIS webhook event repository
func NewWebhookEventRepository(db *gorm.DB, logger *zap.Logger) repository.WebhookEventRepository {
	return &webhookEventRepository{
		db:     db,
		logger: logger,
	}
}

// SaveEvent saves a new webhook event. Redeliveries of the same body are ignored.
func (r *webhookEventRepository) SaveEvent(ctx context.Context, event *model.QrisWebhookEvent) (bool, error) {
	if event.ProcessingStatus == "" {
		event.ProcessingStatus = model.WebhookStatusPending
	}

	// Use ON CONFLICT to handle duplicate deliveries
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)

	if result.Error != nil {
		r.logger.Error("Failed to save QRIS webhook event",
			zap.String("event_id", event.EventID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to save QRIS webhook event: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// GetEvent retrieves a webhook event by ID
func (r *webhookEventRepository) GetEvent(ctx context.Context, eventID string) (*model.QrisWebhookEvent, error) {
	var event model.QrisWebhookEvent

	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get QRIS webhook event",
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get QRIS webhook event: %w", err)
	}

	return &event, nil
}

// MarkProcessed marks a webhook event as processed
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.QrisWebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processing_status": model.WebhookStatusCompleted,
			"processed_at":      &now,
			"next_retry_at":     nil,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark QRIS webhook as processed",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark QRIS webhook as processed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("QRIS webhook event not found: %s", eventID)
	}

	return nil
}

// MarkFailed marks a webhook event as failed and schedules the next replay
func (r *webhookEventRepository) MarkFailed(ctx context.Context, eventID string, cause error) error {
	// Get current event to increment retry count
	var event model.QrisWebhookEvent
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error; err != nil {
		r.logger.Error("Failed to get QRIS webhook event for failure update",
			zap.String("event_id", eventID),
			zap.Error(err))
		return fmt.Errorf("failed to get QRIS webhook event: %w", err)
	}

	nextRetry := time.Now().Add(model.WebhookRetryDelay(event.RetryCount))
	errorMsg := cause.Error()

	result := r.db.WithContext(ctx).
		Model(&model.QrisWebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processing_status": model.WebhookStatusFailed,
			"retry_count":       event.RetryCount + 1,
			"last_error":        &errorMsg,
			"next_retry_at":     &nextRetry,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark QRIS webhook as failed",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark QRIS webhook as failed: %w", result.Error)
	}

	return nil
}

// GetPendingEvents retrieves pending or failed events that are due for replay
func (r *webhookEventRepository) GetPendingEvents(ctx context.Context, now time.Time, limit int) ([]*model.QrisWebhookEvent, error) {
	var events []*model.QrisWebhookEvent

	query := r.db.WithContext(ctx).
		Where("processing_status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			model.WebhookStatusPending,
			model.WebhookStatusFailed,
			now).
		Order("created_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&events).Error; err != nil {
		r.logger.Error("Failed to get pending QRIS webhook events",
			zap.Error(err))
		return nil, fmt.Errorf("failed to get pending QRIS webhook events: %w", err)
	}

	return events, nil
}
