package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	adapterRepo "github.com/wekeepgrowing/qris-gateway/internal/adapter/repository"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/provider"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
	"github.com/wekeepgrowing/qris-gateway/internal/usecase"
)

// MockGateway is a mock implementation of usecase.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateQR(ctx context.Context, req *provider.CreateQRRequest) (*provider.CreateQRResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CreateQRResponse), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, qrID, reference string) (*entity.StatusEvent, error) {
	args := m.Called(ctx, qrID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.StatusEvent), args.Error(1)
}

// MockPublisher is a mock implementation of usecase.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishStatusChange(ctx context.Context, change *entity.StatusChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

var serviceConfig = usecase.QrisServiceConfig{
	Currency:        "IDR",
	QRValidity:      5 * time.Minute,
	PollMaxAttempts: 3,
	PollInterval:    time.Millisecond,
}

func newService(repo repository.QrisPaymentRepository, gateway *MockGateway, publisher usecase.EventPublisher) *usecase.QrisService {
	engine := usecase.NewReconciliationEngine(repo, zap.NewNop())
	return usecase.NewQrisService(repo, gateway, engine, publisher, serviceConfig, zap.NewNop()).
		WithClock(func() time.Time { return baseTime })
}

func pollEvent(code, txID string) *entity.StatusEvent {
	return entity.NewStatusEvent("QR-1", entity.EventSourcePoll, code, txID, nil, baseTime)
}

func TestQrisService_CreateQR(t *testing.T) {
	ctx := context.Background()
	repo := adapterRepo.NewMemoryPaymentRepository()
	gateway := new(MockGateway)
	service := newService(repo, gateway, nil)

	gateway.On("CreateQR", mock.Anything, mock.MatchedBy(func(req *provider.CreateQRRequest) bool {
		return req.Reference == "INV-1" &&
			req.Currency == "IDR" &&
			req.ExpiresAt.Equal(baseTime.Add(5*time.Minute)) &&
			req.Metadata["orderId"] == "42"
	})).Return(&provider.CreateQRResponse{QrID: "QR-1", QrContent: "000201", QrImageURL: "https://img/qr"}, nil).Once()

	payment, err := service.CreateQR(ctx, usecase.CreateQRInput{
		Reference: "INV-1",
		Amount:    decimal.NewFromInt(10000),
		Metadata:  map[string]string{"orderId": "42"},
	})

	require.NoError(t, err)
	assert.Equal(t, "QR-1", payment.QrID)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.Equal(t, baseTime.Add(5*time.Minute), payment.ExpiredAt)
	assert.Equal(t, "42", payment.Metadata["orderId"])

	stored, err := repo.GetByReference(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, "000201", stored.QrContent)
	gateway.AssertExpectations(t)
}

func TestQrisService_CreateQR_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := adapterRepo.NewMemoryPaymentRepository()
	gateway := new(MockGateway)
	service := newService(repo, gateway, nil)

	gateway.On("CreateQR", mock.Anything, mock.Anything).
		Return(&provider.CreateQRResponse{QrID: "QR-1", QrContent: "000201"}, nil).Once()

	input := usecase.CreateQRInput{Reference: "INV-1", Amount: decimal.NewFromInt(10000)}

	_, err := service.CreateQR(ctx, input)
	require.NoError(t, err)

	_, err = service.CreateQR(ctx, input)
	require.Error(t, err)
	assert.True(t, domainErrors.IsDuplicateReference(err))

	gateway.AssertNumberOfCalls(t, "CreateQR", 1)
}

func TestQrisService_CreateQR_ConcurrentSameReference(t *testing.T) {
	ctx := context.Background()
	repo := adapterRepo.NewMemoryPaymentRepository()
	gateway := new(MockGateway)
	service := newService(repo, gateway, nil)

	gateway.On("CreateQR", mock.Anything, mock.Anything).
		Return(&provider.CreateQRResponse{QrID: "QR-1", QrContent: "000201"}, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.CreateQR(ctx, usecase.CreateQRInput{Reference: "INV-1", Amount: decimal.NewFromInt(1)})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, domainErrors.IsDuplicateReference(err))
	}
	assert.Equal(t, 1, succeeded)
	gateway.AssertNumberOfCalls(t, "CreateQR", 1)
}

// staleReferenceCheck reports every reference as free, as a replica that
// checked before another replica stored the payment would
type staleReferenceCheck struct {
	repository.QrisPaymentRepository
}

func (staleReferenceCheck) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	return false, nil
}

func TestQrisService_CreateQR_LostRaceKeepsStoredPayment(t *testing.T) {
	ctx := context.Background()
	completed := withTransactionID(pendingPayment("QR-1", "INV-1"), "TX-1")
	completed.Status = model.PaymentStatusCompleted
	repo := seededRepo(t, completed)
	gateway := new(MockGateway)
	service := newService(staleReferenceCheck{repo}, gateway, nil)

	gateway.On("CreateQR", mock.Anything, mock.Anything).
		Return(&provider.CreateQRResponse{QrID: "QR-2", QrContent: "000201"}, nil).Once()

	_, err := service.CreateQR(ctx, usecase.CreateQRInput{Reference: "INV-1", Amount: decimal.NewFromInt(10000)})

	require.Error(t, err)
	assert.True(t, domainErrors.IsDuplicateReference(err))

	stored, err := repo.GetByReference(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, "QR-1", stored.QrID)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "TX-1", *stored.TransactionID)
}

func TestQrisService_CreateQR_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   usecase.CreateQRInput
		wantErr error
	}{
		{name: "missing reference", input: usecase.CreateQRInput{Reference: "  ", Amount: decimal.NewFromInt(1)}, wantErr: domainErrors.ErrMissingReference},
		{name: "zero amount", input: usecase.CreateQRInput{Reference: "INV-1", Amount: decimal.Zero}, wantErr: domainErrors.ErrInvalidAmount},
		{name: "negative amount", input: usecase.CreateQRInput{Reference: "INV-1", Amount: decimal.NewFromInt(-5)}, wantErr: domainErrors.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := new(MockGateway)
			service := newService(adapterRepo.NewMemoryPaymentRepository(), gateway, nil)

			_, err := service.CreateQR(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			gateway.AssertNotCalled(t, "CreateQR", mock.Anything, mock.Anything)
		})
	}
}

func TestQrisService_CreateQR_GatewayFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	repo := adapterRepo.NewMemoryPaymentRepository()
	gateway := new(MockGateway)
	service := newService(repo, gateway, nil)

	transportErr := &domainErrors.TransportError{Method: "POST", URL: "https://bank", Cause: context.DeadlineExceeded}
	gateway.On("CreateQR", mock.Anything, mock.Anything).Return(nil, transportErr)

	_, err := service.CreateQR(ctx, usecase.CreateQRInput{Reference: "INV-1", Amount: decimal.NewFromInt(1)})

	assert.ErrorIs(t, err, transportErr)
	exists, _ := repo.ExistsByReference(ctx, "INV-1")
	assert.False(t, exists)
}

func TestQrisService_CheckStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown reference", func(t *testing.T) {
		service := newService(adapterRepo.NewMemoryPaymentRepository(), new(MockGateway), nil)

		_, err := service.CheckStatus(ctx, "missing", false)

		assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
	})

	t.Run("pending payment is refreshed from gateway", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		gateway := new(MockGateway)
		publisher := new(MockPublisher)
		service := newService(repo, gateway, publisher)

		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").Return(pollEvent("00", "TX-1"), nil).Once()
		publisher.On("PublishStatusChange", mock.Anything, mock.MatchedBy(func(change *entity.StatusChange) bool {
			return change.PreviousStatus == model.PaymentStatusPending &&
				change.Status == model.PaymentStatusCompleted &&
				change.TransactionID == "TX-1" &&
				change.Source == entity.EventSourcePoll
		})).Return(nil).Once()

		payment, err := service.CheckStatus(ctx, "INV-1", false)

		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusCompleted, payment.Status)
		publisher.AssertExpectations(t)
	})

	t.Run("terminal payment served from storage", func(t *testing.T) {
		expired := pendingPayment("QR-1", "INV-1")
		expired.Status = model.PaymentStatusExpired
		gateway := new(MockGateway)
		service := newService(seededRepo(t, expired), gateway, nil)

		payment, err := service.CheckStatus(ctx, "INV-1", false)

		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusExpired, payment.Status)
		gateway.AssertNotCalled(t, "QueryStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("force remote still cannot move a terminal payment", func(t *testing.T) {
		expired := pendingPayment("QR-1", "INV-1")
		expired.Status = model.PaymentStatusExpired
		gateway := new(MockGateway)
		service := newService(seededRepo(t, expired), gateway, nil)

		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").Return(pollEvent("00", "TX-1"), nil).Once()

		payment, err := service.CheckStatus(ctx, "INV-1", true)

		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusExpired, payment.Status)
		gateway.AssertExpectations(t)
	})

	t.Run("publish failure does not roll back", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		gateway := new(MockGateway)
		publisher := new(MockPublisher)
		service := newService(repo, gateway, publisher)

		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").Return(pollEvent("05", ""), nil)
		publisher.On("PublishStatusChange", mock.Anything, mock.Anything).Return(errors.New("broker down"))

		payment, err := service.CheckStatus(ctx, "INV-1", false)

		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusExpired, payment.Status)
		stored, _ := repo.GetByReference(ctx, "INV-1")
		assert.Equal(t, model.PaymentStatusExpired, stored.Status)
	})
}

func TestQrisService_IngestWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("missing identifier", func(t *testing.T) {
		service := newService(adapterRepo.NewMemoryPaymentRepository(), new(MockGateway), nil)

		_, err := service.IngestWebhook(ctx, &entity.WebhookNotification{TransactionStatusCode: "00"})

		assert.ErrorIs(t, err, domainErrors.ErrMissingPaymentIdentifier)
	})

	t.Run("original reference number identifies the payment", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		service := newService(repo, new(MockGateway), nil)

		result, err := service.IngestWebhook(ctx, &entity.WebhookNotification{
			OriginalReferenceNo:   "QR-1",
			TransactionStatusCode: "00",
			ReferenceNo:           "TX-1",
			TransactionDate:       "2024-03-01T10:01:00Z",
		})

		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeApplied, result.Outcome)
		assert.Equal(t, model.PaymentStatusCompleted, result.Payment.Status)
		assert.True(t, baseTime.Add(time.Minute).Equal(*result.Payment.PaidAt))
		assert.Equal(t, "webhook", *result.Payment.LastEventSource)
	})

	t.Run("falls back to partner reference", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		service := newService(repo, new(MockGateway), nil)

		result, err := service.IngestWebhook(ctx, &entity.WebhookNotification{
			OriginalReferenceNo:        "BANK-REF",
			OriginalPartnerReferenceNo: "INV-1",
			TransactionStatusCode:      "05",
		})

		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusExpired, result.Payment.Status)
	})

	t.Run("reference on a pending notification is not settlement proof", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		service := newService(repo, new(MockGateway), nil)

		_, err := service.IngestWebhook(ctx, &entity.WebhookNotification{
			QrID:                  "QR-1",
			TransactionStatusCode: "03",
			ReferenceNo:           "REF-QR",
		})
		require.NoError(t, err)

		result, err := service.IngestWebhook(ctx, &entity.WebhookNotification{QrID: "QR-1", TransactionStatusCode: "00"})

		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeWithheld, result.Outcome)
		stored, _ := repo.GetByReference(ctx, "INV-1")
		assert.Equal(t, model.PaymentStatusPending, stored.Status)
		assert.Nil(t, stored.TransactionID)
	})

	t.Run("unknown payment", func(t *testing.T) {
		service := newService(adapterRepo.NewMemoryPaymentRepository(), new(MockGateway), nil)

		_, err := service.IngestWebhook(ctx, &entity.WebhookNotification{QrID: "QR-X", TransactionStatusCode: "00"})

		assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
	})
}

func TestQrisService_PollUntilTerminal(t *testing.T) {
	ctx := context.Background()

	t.Run("times out after exactly max attempts", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		gateway := new(MockGateway)
		service := newService(repo, gateway, nil)

		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").Return(pollEvent("03", ""), nil)

		payment, err := service.PollUntilTerminal(ctx, "QR-1", "INV-1", 3, time.Millisecond)

		require.Error(t, err)
		assert.True(t, domainErrors.IsTimeout(err))
		var timeoutErr *domainErrors.TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, 3, timeoutErr.Attempts)
		require.NotNil(t, payment)
		assert.Equal(t, model.PaymentStatusPending, payment.Status)
		gateway.AssertNumberOfCalls(t, "QueryStatus", 3)
	})

	t.Run("stops at terminal status", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		gateway := new(MockGateway)
		service := newService(repo, gateway, nil)

		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").Return(pollEvent("03", ""), nil).Once()
		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").Return(pollEvent("00", "TX-1"), nil).Once()

		payment, err := service.PollUntilTerminal(ctx, "QR-1", "INV-1", 10, time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusCompleted, payment.Status)
		gateway.AssertNumberOfCalls(t, "QueryStatus", 2)
	})

	t.Run("transport errors count as attempts", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		gateway := new(MockGateway)
		service := newService(repo, gateway, nil)

		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").
			Return(nil, &domainErrors.TransportError{Method: "POST", URL: "https://bank", Cause: context.DeadlineExceeded})

		_, err := service.PollUntilTerminal(ctx, "QR-1", "INV-1", 3, time.Millisecond)

		assert.True(t, domainErrors.IsTimeout(err))
		gateway.AssertNumberOfCalls(t, "QueryStatus", 3)
	})

	t.Run("auth failure aborts", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		gateway := new(MockGateway)
		service := newService(repo, gateway, nil)

		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").
			Return(nil, &domainErrors.AuthFailureError{Profile: "snap", Cause: errors.New("denied")})

		_, err := service.PollUntilTerminal(ctx, "QR-1", "INV-1", 5, time.Millisecond)

		assert.True(t, domainErrors.IsAuthFailure(err))
		gateway.AssertNumberOfCalls(t, "QueryStatus", 1)
	})

	t.Run("cancellation between attempts", func(t *testing.T) {
		repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
		gateway := new(MockGateway)
		service := newService(repo, gateway, nil)

		cancelCtx, cancel := context.WithCancel(ctx)
		gateway.On("QueryStatus", mock.Anything, "QR-1", "INV-1").
			Run(func(args mock.Arguments) { cancel() }).
			Return(pollEvent("03", ""), nil)

		payment, err := service.PollUntilTerminal(cancelCtx, "QR-1", "INV-1", 5, time.Hour)

		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, payment)
		assert.Equal(t, model.PaymentStatusPending, payment.Status)
		gateway.AssertNumberOfCalls(t, "QueryStatus", 1)
	})

	t.Run("already terminal returns without querying", func(t *testing.T) {
		failed := pendingPayment("QR-1", "INV-1")
		failed.Status = model.PaymentStatusFailed
		gateway := new(MockGateway)
		service := newService(seededRepo(t, failed), gateway, nil)

		payment, err := service.PollUntilTerminal(ctx, "QR-1", "INV-1", 3, time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusFailed, payment.Status)
		gateway.AssertNotCalled(t, "QueryStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown payment", func(t *testing.T) {
		service := newService(adapterRepo.NewMemoryPaymentRepository(), new(MockGateway), nil)

		_, err := service.PollByReference(ctx, "missing", 3, time.Millisecond)

		assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
	})
}
