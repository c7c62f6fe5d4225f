package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
)

// ErrDuplicateKey is returned when a write collides with a unique qr id or reference
var ErrDuplicateKey = errors.New("duplicate key")

// QrisPaymentRepository defines the storage operations for QRIS payments.
// Getters return (nil, nil) when no record matches.
type QrisPaymentRepository interface {
	GetByReference(ctx context.Context, reference string) (*model.QrisPayment, error)
	GetByQrID(ctx context.Context, qrID string) (*model.QrisPayment, error)
	ExistsByReference(ctx context.Context, reference string) (bool, error)
	// Create inserts a new payment and returns ErrDuplicateKey when the reference or qr id is taken
	Create(ctx context.Context, payment *model.QrisPayment) error
	// Upsert inserts the payment or, on a reference conflict, updates its mutable columns
	Upsert(ctx context.Context, payment *model.QrisPayment) error
}

// WebhookEventRepository stores raw webhook deliveries for audit and replay
type WebhookEventRepository interface {
	// SaveEvent stores the event and reports false when the event id was already stored
	SaveEvent(ctx context.Context, event *model.QrisWebhookEvent) (bool, error)
	GetEvent(ctx context.Context, eventID string) (*model.QrisWebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, err error) error
	GetPendingEvents(ctx context.Context, now time.Time, limit int) ([]*model.QrisWebhookEvent, error)
}
