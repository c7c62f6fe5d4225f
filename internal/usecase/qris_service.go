package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/provider"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
)

// Gateway is the payment gateway client used by the service
type Gateway interface {
	CreateQR(ctx context.Context, req *provider.CreateQRRequest) (*provider.CreateQRResponse, error)
	QueryStatus(ctx context.Context, qrID, reference string) (*entity.StatusEvent, error)
}

// EventPublisher delivers status changes to downstream consumers
type EventPublisher interface {
	PublishStatusChange(ctx context.Context, change *entity.StatusChange) error
}

// QrisServiceConfig holds the per-instance service settings
type QrisServiceConfig struct {
	Currency        string
	QRValidity      time.Duration
	PollMaxAttempts int
	PollInterval    time.Duration
}

// CreateQRInput is a request to create a payment for a caller reference
type CreateQRInput struct {
	Reference string
	Amount    decimal.Decimal
	Metadata  map[string]string
}

// QrisService orchestrates QR creation, status checks, webhook ingestion and polling
type QrisService struct {
	repo      repository.QrisPaymentRepository
	gateway   Gateway
	engine    *ReconciliationEngine
	publisher EventPublisher
	config    QrisServiceConfig
	refLocks  *KeyedMutex
	logger    *zap.Logger
	now       func() time.Time
}

// NewQrisService creates a new QRIS service
func NewQrisService(
	repo repository.QrisPaymentRepository,
	gateway Gateway,
	engine *ReconciliationEngine,
	publisher EventPublisher,
	config QrisServiceConfig,
	logger *zap.Logger,
) *QrisService {
	return &QrisService{
		repo:      repo,
		gateway:   gateway,
		engine:    engine,
		publisher: publisher,
		config:    config,
		refLocks:  NewKeyedMutex(),
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces time.Now
func (s *QrisService) WithClock(now func() time.Time) *QrisService {
	s.now = now
	return s
}

// CreateQR creates a dynamic QR and stores the payment as PENDING.
// An existing reference is rejected before the gateway is called.
func (s *QrisService) CreateQR(ctx context.Context, input CreateQRInput) (*model.QrisPayment, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, domainErrors.ErrMissingReference
	}
	if !input.Amount.IsPositive() {
		return nil, domainErrors.ErrInvalidAmount
	}

	unlock := s.refLocks.Lock(reference)
	defer unlock()

	exists, err := s.repo.ExistsByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to check reference: %w", err)
	}
	if exists {
		s.logger.Info("Rejected duplicate reference", zap.String("reference", reference))
		return nil, &domainErrors.DuplicateReferenceError{Reference: reference}
	}

	createdAt := s.now()
	expiresAt := createdAt.Add(s.config.QRValidity)

	resp, err := s.gateway.CreateQR(ctx, &provider.CreateQRRequest{
		Reference: reference,
		Amount:    input.Amount,
		Currency:  s.config.Currency,
		Metadata:  input.Metadata,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		s.logger.Error("Failed to create QR at gateway",
			zap.String("reference", reference),
			zap.Error(err))
		return nil, err
	}

	payment := &model.QrisPayment{
		ID:         uuid.New(),
		QrID:       resp.QrID,
		Reference:  reference,
		Amount:     input.Amount,
		Currency:   s.config.Currency,
		QrContent:  resp.QrContent,
		QrImageURL: resp.QrImageURL,
		Status:     model.PaymentStatusPending,
		Metadata:   toJSONMap(input.Metadata),
		ExpiredAt:  expiresAt,
		CreatedAt:  createdAt,
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, &domainErrors.DuplicateReferenceError{Reference: reference}
		}
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	s.logger.Info("QRIS payment created",
		zap.String("reference", reference),
		zap.String("qr_id", payment.QrID),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.Time("expired_at", payment.ExpiredAt))

	return payment, nil
}

// CheckStatus returns the payment for a reference. Terminal payments are served
// from storage unless forceRemote is set; otherwise the gateway is queried and
// the answer reconciled.
func (s *QrisService) CheckStatus(ctx context.Context, reference string, forceRemote bool) (*model.QrisPayment, error) {
	payment, err := s.getByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if payment.Status.IsTerminal() && !forceRemote {
		return payment, nil
	}

	ev, err := s.gateway.QueryStatus(ctx, payment.QrID, payment.Reference)
	if err != nil {
		s.logger.Warn("Status query failed",
			zap.String("reference", reference),
			zap.String("qr_id", payment.QrID),
			zap.Error(err))
		return nil, err
	}

	result, err := s.reconcile(ctx, ev)
	if err != nil {
		return nil, err
	}
	return result.Payment, nil
}

// IngestWebhook feeds a gateway callback into the reconciliation engine
func (s *QrisService) IngestWebhook(ctx context.Context, notification *entity.WebhookNotification) (*ReconcileResult, error) {
	qrID := notification.PaymentIdentifier()
	if qrID == "" {
		return nil, domainErrors.ErrMissingPaymentIdentifier
	}

	var transactionID string
	if notification.TransactionStatusCode == model.GatewayCodeSuccess {
		transactionID = notification.ReferenceNo
	}

	ev := entity.NewStatusEvent(
		qrID,
		entity.EventSourceWebhook,
		notification.TransactionStatusCode,
		transactionID,
		entity.ParseGatewayTime(notification.TransactionDate),
		s.now(),
	)

	result, err := s.reconcile(ctx, ev)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) && notification.OriginalPartnerReferenceNo != "" {
		// some deliveries only carry the partner reference
		payment, lookupErr := s.repo.GetByReference(ctx, notification.OriginalPartnerReferenceNo)
		if lookupErr == nil && payment != nil {
			ev.QrID = payment.QrID
			result, err = s.reconcile(ctx, ev)
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PollByReference resolves the reference and polls its payment
func (s *QrisService) PollByReference(ctx context.Context, reference string, maxAttempts int, interval time.Duration) (*model.QrisPayment, error) {
	payment, err := s.getByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.PollUntilTerminal(ctx, payment.QrID, payment.Reference, maxAttempts, interval)
}

// PollUntilTerminal queries the gateway until the payment is terminal or
// maxAttempts queries were made. Cancellation is checked between attempts; an
// in-flight query is allowed to finish within its own timeout. On exhaustion the
// last known payment is returned together with a TimeoutError.
func (s *QrisService) PollUntilTerminal(ctx context.Context, qrID, reference string, maxAttempts int, interval time.Duration) (*model.QrisPayment, error) {
	if maxAttempts <= 0 {
		maxAttempts = s.config.PollMaxAttempts
	}
	if interval <= 0 {
		interval = s.config.PollInterval
	}

	last, err := s.repo.GetByQrID(ctx, qrID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", qrID, err)
	}
	if last == nil {
		return nil, domainErrors.ErrPaymentNotFound
	}
	if last.Status.IsTerminal() {
		return last, nil
	}

	start := s.now()
	callCtx := context.WithoutCancel(ctx)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		ev, err := s.gateway.QueryStatus(callCtx, qrID, reference)
		switch {
		case err == nil:
			result, recErr := s.reconcile(callCtx, ev)
			if recErr != nil {
				return last, recErr
			}
			last = result.Payment
			if last.Status.IsTerminal() {
				s.logger.Info("Polling finished",
					zap.String("qr_id", qrID),
					zap.Int("attempts", attempt),
					zap.String("status", last.Status.String()))
				return last, nil
			}
		case domainErrors.IsAuthFailure(err):
			return last, err
		default:
			s.logger.Warn("Poll attempt failed",
				zap.String("qr_id", qrID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}

	return last, &domainErrors.TimeoutError{
		QrID:     qrID,
		Attempts: maxAttempts,
		Elapsed:  s.now().Sub(start),
	}
}

func (s *QrisService) getByReference(ctx context.Context, reference string) (*model.QrisPayment, error) {
	payment, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", reference, err)
	}
	if payment == nil {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return payment, nil
}

// reconcile runs the engine and publishes applied transitions
func (s *QrisService) reconcile(ctx context.Context, ev *entity.StatusEvent) (*ReconcileResult, error) {
	result, err := s.engine.Reconcile(ctx, ev)
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeApplied && s.publisher != nil {
		change := &entity.StatusChange{
			QrID:           result.Payment.QrID,
			Reference:      result.Payment.Reference,
			PreviousStatus: result.PreviousStatus,
			Status:         result.Payment.Status,
			PaidAt:         result.Payment.PaidAt,
			Source:         ev.Source,
			OccurredAt:     ev.ReceivedAt,
		}
		if result.Payment.TransactionID != nil {
			change.TransactionID = *result.Payment.TransactionID
		}
		if err := s.publisher.PublishStatusChange(ctx, change); err != nil {
			s.logger.Error("Failed to publish status change",
				zap.String("qr_id", change.QrID),
				zap.String("status", change.Status.String()),
				zap.Error(err))
		}
	}

	return result, nil
}

func toJSONMap(metadata map[string]string) datatypes.JSONMap {
	if len(metadata) == 0 {
		return nil
	}
	m := make(datatypes.JSONMap, len(metadata))
	for k, v := range metadata {
		m[k] = v
	}
	return m
}
