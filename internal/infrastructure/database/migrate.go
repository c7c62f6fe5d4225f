package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
)

// Migrate creates or updates the payment and webhook tables
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	if err := db.AutoMigrate(
		&model.QrisPayment{},
		&model.QrisWebhookEvent{},
	); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	logger.Info("Creating custom indexes...")
	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates partial indexes GORM tags cannot express
func createCustomIndexes(db *gorm.DB) error {
	// replay scans only unfinished deliveries
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_qris_webhook_events_unprocessed ON qris_webhook_events (next_retry_at, received_at) WHERE processing_status IN ('pending', 'failed')`).Error; err != nil {
		return err
	}

	// pending payments are what pollers look at
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_qris_payments_pending ON qris_payments (expired_at) WHERE status = 'PENDING'`).Error; err != nil {
		return err
	}

	return nil
}
