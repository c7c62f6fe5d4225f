package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
)

// mutableColumns are the only columns an upsert on an existing reference may change
var mutableColumns = []string{
	"status",
	"last_status_code",
	"last_event_source",
	"transaction_id",
	"paid_at",
	"updated_at",
}

type qrisPaymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewQrisPaymentRepository creates a new QRIS payment repository
func NewQrisPaymentRepository(db *gorm.DB, logger *zap.Logger) repository.QrisPaymentRepository {
	return &qrisPaymentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *qrisPaymentRepository) GetByReference(ctx context.Context, reference string) (*model.QrisPayment, error) {
	return r.first(ctx, "reference = ?", reference)
}

func (r *qrisPaymentRepository) GetByQrID(ctx context.Context, qrID string) (*model.QrisPayment, error) {
	return r.first(ctx, "qr_id = ?", qrID)
}

func (r *qrisPaymentRepository) first(ctx context.Context, query string, arg string) (*model.QrisPayment, error) {
	var payment model.QrisPayment

	err := r.db.WithContext(ctx).
		Where(query, arg).
		First(&payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get QRIS payment",
			zap.String("key", arg),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get QRIS payment: %w", err)
	}

	return &payment, nil
}

func (r *qrisPaymentRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.QrisPayment{}).
		Where("reference = ?", reference).
		Count(&count).Error

	if err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}

	return count > 0, nil
}

func (r *qrisPaymentRepository) Create(ctx context.Context, payment *model.QrisPayment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(payment)

	if result.Error != nil {
		r.logger.Error("Failed to create QRIS payment",
			zap.String("reference", payment.Reference),
			zap.String("qr_id", payment.QrID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to create QRIS payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrDuplicateKey
	}

	return nil
}

func (r *qrisPaymentRepository) Upsert(ctx context.Context, payment *model.QrisPayment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoUpdates: clause.AssignmentColumns(mutableColumns),
		}).
		Create(payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicateKey
		}
		r.logger.Error("Failed to upsert QRIS payment",
			zap.String("reference", payment.Reference),
			zap.String("qr_id", payment.QrID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert QRIS payment: %w", err)
	}

	return nil
}
