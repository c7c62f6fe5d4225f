package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	adapterRepo "github.com/wekeepgrowing/qris-gateway/internal/adapter/repository"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
	"github.com/wekeepgrowing/qris-gateway/internal/usecase"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func pendingPayment(qrID, reference string) *model.QrisPayment {
	return &model.QrisPayment{
		QrID:      qrID,
		Reference: reference,
		Amount:    decimal.NewFromInt(10000),
		Currency:  "IDR",
		QrContent: "000201",
		Status:    model.PaymentStatusPending,
		ExpiredAt: baseTime.Add(5 * time.Minute),
		CreatedAt: baseTime,
	}
}

func event(source entity.EventSource, code, txID string, offset time.Duration) *entity.StatusEvent {
	return entity.NewStatusEvent("QR-1", source, code, txID, nil, baseTime.Add(offset))
}

func withTransactionID(p *model.QrisPayment, txID string) *model.QrisPayment {
	p.TransactionID = &txID
	return p
}

func seededRepo(t *testing.T, payment *model.QrisPayment) repository.QrisPaymentRepository {
	t.Helper()
	repo := adapterRepo.NewMemoryPaymentRepository()
	require.NoError(t, repo.Upsert(context.Background(), payment))
	return repo
}

func TestApply(t *testing.T) {
	completed := pendingPayment("QR-1", "INV-1")
	completed.Status = model.PaymentStatusCompleted
	txID := "TX-1"
	completed.TransactionID = &txID
	paid := baseTime.Add(time.Minute)
	completed.PaidAt = &paid

	tests := []struct {
		name        string
		current     *model.QrisPayment
		event       *entity.StatusEvent
		wantOutcome usecase.Outcome
		wantStatus  model.PaymentStatus
		wantTxID    string
	}{
		{
			name:        "pending to completed with proof",
			current:     pendingPayment("QR-1", "INV-1"),
			event:       event(entity.EventSourceWebhook, "00", "TX-1", time.Minute),
			wantOutcome: usecase.OutcomeApplied,
			wantStatus:  model.PaymentStatusCompleted,
			wantTxID:    "TX-1",
		},
		{
			name:        "pending to expired",
			current:     pendingPayment("QR-1", "INV-1"),
			event:       event(entity.EventSourcePoll, "05", "", time.Minute),
			wantOutcome: usecase.OutcomeApplied,
			wantStatus:  model.PaymentStatusExpired,
		},
		{
			name:        "unknown code fails",
			current:     pendingPayment("QR-1", "INV-1"),
			event:       event(entity.EventSourcePoll, "99", "", time.Minute),
			wantOutcome: usecase.OutcomeApplied,
			wantStatus:  model.PaymentStatusFailed,
		},
		{
			name:        "completion without proof withheld",
			current:     pendingPayment("QR-1", "INV-1"),
			event:       event(entity.EventSourceWebhook, "00", "", time.Minute),
			wantOutcome: usecase.OutcomeWithheld,
			wantStatus:  model.PaymentStatusPending,
		},
		{
			name:        "stored id on a pending record is not proof",
			current:     withTransactionID(pendingPayment("QR-1", "INV-1"), "REF-QR"),
			event:       event(entity.EventSourceWebhook, "00", "", time.Minute),
			wantOutcome: usecase.OutcomeWithheld,
			wantStatus:  model.PaymentStatusPending,
			wantTxID:    "REF-QR",
		},
		{
			name:        "pending event does not record a transaction id",
			current:     pendingPayment("QR-1", "INV-1"),
			event:       event(entity.EventSourcePoll, "03", "REF-QR", time.Minute),
			wantOutcome: usecase.OutcomeNoOp,
			wantStatus:  model.PaymentStatusPending,
		},
		{
			name:        "failure event does not record a transaction id",
			current:     pendingPayment("QR-1", "INV-1"),
			event:       event(entity.EventSourcePoll, "99", "REF-QR", time.Minute),
			wantOutcome: usecase.OutcomeApplied,
			wantStatus:  model.PaymentStatusFailed,
		},
		{
			name:        "pending repeated is a no-op",
			current:     pendingPayment("QR-1", "INV-1"),
			event:       event(entity.EventSourcePoll, "03", "", time.Minute),
			wantOutcome: usecase.OutcomeNoOp,
			wantStatus:  model.PaymentStatusPending,
		},
		{
			name:        "terminal record discards differing status",
			current:     completed,
			event:       event(entity.EventSourcePoll, "05", "", 2*time.Minute),
			wantOutcome: usecase.OutcomeDiscarded,
			wantStatus:  model.PaymentStatusCompleted,
			wantTxID:    "TX-1",
		},
		{
			name:        "terminal record ignores duplicate completion",
			current:     completed,
			event:       event(entity.EventSourceWebhook, "00", "TX-2", 2*time.Minute),
			wantOutcome: usecase.OutcomeNoOp,
			wantStatus:  model.PaymentStatusCompleted,
			wantTxID:    "TX-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.current.Clone()

			next, outcome, conflict := usecase.Apply(tt.current, tt.event)

			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantStatus, next.Status)
			if tt.wantTxID != "" {
				require.NotNil(t, next.TransactionID)
				assert.Equal(t, tt.wantTxID, *next.TransactionID)
			} else {
				assert.Nil(t, next.TransactionID)
			}
			if outcome == usecase.OutcomeWithheld {
				require.NotNil(t, conflict)
				assert.Equal(t, "QR-1", conflict.QrID)
			} else {
				assert.Nil(t, conflict)
			}
			assert.Equal(t, before, tt.current, "current record must not be modified")
		})
	}
}

func TestApply_CompletionPaidAt(t *testing.T) {
	t.Run("uses event paid time", func(t *testing.T) {
		paidAt := baseTime.Add(30 * time.Second)
		ev := entity.NewStatusEvent("QR-1", entity.EventSourcePoll, "00", "TX-1", &paidAt, baseTime.Add(time.Minute))

		next, _, _ := usecase.Apply(pendingPayment("QR-1", "INV-1"), ev)

		require.NotNil(t, next.PaidAt)
		assert.Equal(t, paidAt, *next.PaidAt)
		assert.Equal(t, "00", *next.LastStatusCode)
		assert.Equal(t, "poll", *next.LastEventSource)
	})

	t.Run("falls back to arrival time", func(t *testing.T) {
		ev := event(entity.EventSourceWebhook, "00", "TX-1", time.Minute)

		next, _, _ := usecase.Apply(pendingPayment("QR-1", "INV-1"), ev)

		require.NotNil(t, next.PaidAt)
		assert.Equal(t, baseTime.Add(time.Minute), *next.PaidAt)
	})
}

func TestApply_SameStatusFillsMissingDetails(t *testing.T) {
	current := pendingPayment("QR-1", "INV-1")
	current.Status = model.PaymentStatusCompleted
	tx := "TX-1"
	current.TransactionID = &tx

	next, outcome, _ := usecase.Apply(current, event(entity.EventSourceWebhook, "00", "TX-1", time.Minute))

	assert.Equal(t, usecase.OutcomeEnriched, outcome)
	require.NotNil(t, next.PaidAt)
	assert.Equal(t, baseTime.Add(time.Minute), *next.PaidAt)
}

func TestReconciliationEngine_StickyTerminalState(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
	engine := usecase.NewReconciliationEngine(repo, zap.NewNop())

	result, err := engine.Reconcile(ctx, event(entity.EventSourcePoll, "05", "", time.Minute))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeApplied, result.Outcome)
	assert.Equal(t, model.PaymentStatusPending, result.PreviousStatus)

	result, err = engine.Reconcile(ctx, event(entity.EventSourceWebhook, "00", "TX-1", 2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeDiscarded, result.Outcome)

	stored, err := repo.GetByQrID(ctx, "QR-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusExpired, stored.Status)
	assert.Nil(t, stored.TransactionID)
}

func TestReconciliationEngine_OutOfOrderConvergence(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
	engine := usecase.NewReconciliationEngine(repo, zap.NewNop())

	// webhook reports payment, a stale poll answer arrives afterwards
	_, err := engine.Reconcile(ctx, event(entity.EventSourceWebhook, "00", "TX-1", time.Minute))
	require.NoError(t, err)
	result, err := engine.Reconcile(ctx, event(entity.EventSourcePoll, "03", "", 2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeDiscarded, result.Outcome)

	stored, err := repo.GetByQrID(ctx, "QR-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, "TX-1", *stored.TransactionID)
	assert.Equal(t, "webhook", *stored.LastEventSource)
}

func TestReconciliationEngine_CompletionRequiresProof(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
	engine := usecase.NewReconciliationEngine(repo, zap.NewNop())

	result, err := engine.Reconcile(ctx, event(entity.EventSourceWebhook, "00", "", time.Minute))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeWithheld, result.Outcome)
	require.NotNil(t, result.Conflict)
	assert.Contains(t, result.Conflict.Error(), "RECONCILIATION_CONFLICT")

	stored, err := repo.GetByQrID(ctx, "QR-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, stored.Status)

	result, err = engine.Reconcile(ctx, event(entity.EventSourcePoll, "00", "TX-9", 2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeApplied, result.Outcome)
	assert.Equal(t, model.PaymentStatusCompleted, result.Payment.Status)
}

func TestReconciliationEngine_PendingReferenceIsNotProof(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
	engine := usecase.NewReconciliationEngine(repo, zap.NewNop())

	result, err := engine.Reconcile(ctx, event(entity.EventSourcePoll, "03", "REF-QR", time.Minute))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeNoOp, result.Outcome)

	result, err = engine.Reconcile(ctx, event(entity.EventSourceWebhook, "00", "", 2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeWithheld, result.Outcome)

	stored, err := repo.GetByQrID(ctx, "QR-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, stored.Status)
	assert.Nil(t, stored.TransactionID)
}

func TestReconciliationEngine_UnknownPayment(t *testing.T) {
	engine := usecase.NewReconciliationEngine(adapterRepo.NewMemoryPaymentRepository(), zap.NewNop())

	_, err := engine.Reconcile(context.Background(), event(entity.EventSourceWebhook, "00", "TX-1", 0))

	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestReconciliationEngine_ConcurrentEventsConverge(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, pendingPayment("QR-1", "INV-1"))
	engine := usecase.NewReconciliationEngine(repo, zap.NewNop())

	events := []*entity.StatusEvent{
		event(entity.EventSourcePoll, "03", "", time.Second),
		event(entity.EventSourceWebhook, "00", "TX-1", 2*time.Second),
		event(entity.EventSourcePoll, "00", "TX-1", 3*time.Second),
		event(entity.EventSourceWebhook, "00", "TX-1", 4*time.Second),
		event(entity.EventSourcePoll, "03", "", 5*time.Second),
	}

	applied := make(chan usecase.Outcome, len(events))
	for _, ev := range events {
		go func(ev *entity.StatusEvent) {
			result, err := engine.Reconcile(ctx, ev)
			assert.NoError(t, err)
			applied <- result.Outcome
		}(ev)
	}

	transitions := 0
	for range events {
		if <-applied == usecase.OutcomeApplied {
			transitions++
		}
	}

	stored, err := repo.GetByQrID(ctx, "QR-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, 1, transitions)
}
