package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
)

// Outcome describes what a status event did to a payment record
type Outcome string

const (
	// OutcomeApplied moved the record to a new status
	OutcomeApplied Outcome = "applied"
	// OutcomeEnriched kept the status but filled settlement details
	OutcomeEnriched Outcome = "enriched"
	// OutcomeNoOp repeated what the record already says
	OutcomeNoOp Outcome = "noop"
	// OutcomeDiscarded tried to move a terminal record
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeWithheld claimed completion without a transaction id
	OutcomeWithheld Outcome = "withheld"
)

// Changed reports whether the record must be persisted
func (o Outcome) Changed() bool {
	return o == OutcomeApplied || o == OutcomeEnriched
}

// ReconcileResult is the outcome of feeding one event into the engine
type ReconcileResult struct {
	Payment        *model.QrisPayment
	PreviousStatus model.PaymentStatus
	Outcome        Outcome
	// Conflict is set when a completion claim was withheld
	Conflict *domainErrors.ReconciliationConflictError
}

// Apply computes the effect of an event on a payment without side effects.
// The returned record is a copy; current is never modified.
func Apply(current *model.QrisPayment, ev *entity.StatusEvent) (*model.QrisPayment, Outcome, *domainErrors.ReconciliationConflictError) {
	next := current.Clone()
	target := ev.Status()

	if current.Status.IsTerminal() && target != current.Status {
		return next, OutcomeDiscarded, nil
	}

	// only a success event carries settlement proof
	proof := ""
	if target == model.PaymentStatusCompleted {
		proof = ev.TransactionID
	}

	if target == current.Status {
		enriched := false
		if proof != "" && !current.HasTransactionID() {
			next.TransactionID = &proof
			enriched = true
		}
		if target == model.PaymentStatusCompleted && current.PaidAt == nil {
			next.PaidAt = paidAt(ev)
			enriched = true
		}
		if !enriched {
			return next, OutcomeNoOp, nil
		}
		stamp(next, ev)
		return next, OutcomeEnriched, nil
	}

	if target == model.PaymentStatusCompleted && proof == "" {
		return next, OutcomeWithheld, &domainErrors.ReconciliationConflictError{
			QrID:    current.QrID,
			Source:  string(ev.Source),
			RawCode: ev.RawCode,
		}
	}

	next.Status = target
	if target == model.PaymentStatusCompleted {
		next.TransactionID = &proof
		next.PaidAt = paidAt(ev)
	}
	stamp(next, ev)
	return next, OutcomeApplied, nil
}

func paidAt(ev *entity.StatusEvent) *time.Time {
	if ev.PaidAt != nil {
		t := *ev.PaidAt
		return &t
	}
	t := ev.ReceivedAt
	return &t
}

func stamp(p *model.QrisPayment, ev *entity.StatusEvent) {
	code := ev.RawCode
	source := string(ev.Source)
	updatedAt := ev.ReceivedAt
	p.LastStatusCode = &code
	p.LastEventSource = &source
	p.UpdatedAt = &updatedAt
}

// ReconciliationEngine is the single writer of payment status. Events for the
// same qr id are applied one at a time, in arrival order.
type ReconciliationEngine struct {
	repo   repository.QrisPaymentRepository
	locks  *KeyedMutex
	logger *zap.Logger
}

// NewReconciliationEngine creates a new reconciliation engine
func NewReconciliationEngine(repo repository.QrisPaymentRepository, logger *zap.Logger) *ReconciliationEngine {
	return &ReconciliationEngine{
		repo:   repo,
		locks:  NewKeyedMutex(),
		logger: logger,
	}
}

// Reconcile applies the event to the payment identified by ev.QrID and persists the result
func (e *ReconciliationEngine) Reconcile(ctx context.Context, ev *entity.StatusEvent) (*ReconcileResult, error) {
	unlock := e.locks.Lock(ev.QrID)
	defer unlock()

	current, err := e.repo.GetByQrID(ctx, ev.QrID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", ev.QrID, err)
	}
	if current == nil {
		return nil, domainErrors.ErrPaymentNotFound
	}

	next, outcome, conflict := Apply(current, ev)
	result := &ReconcileResult{
		Payment:        next,
		PreviousStatus: current.Status,
		Outcome:        outcome,
		Conflict:       conflict,
	}

	switch outcome {
	case OutcomeWithheld:
		e.logger.Warn("Completion withheld without transaction id",
			zap.String("qr_id", ev.QrID),
			zap.String("source", string(ev.Source)),
			zap.String("status_code", ev.RawCode),
			zap.Error(conflict))
	case OutcomeDiscarded:
		e.logger.Info("Discarded event for terminal payment",
			zap.String("qr_id", ev.QrID),
			zap.String("status", current.Status.String()),
			zap.String("event_status", ev.Status().String()),
			zap.String("source", string(ev.Source)))
	}

	if !outcome.Changed() {
		return result, nil
	}

	if err := e.repo.Upsert(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to persist payment %s: %w", ev.QrID, err)
	}

	e.logger.Info("Payment reconciled",
		zap.String("qr_id", next.QrID),
		zap.String("reference", next.Reference),
		zap.String("outcome", string(outcome)),
		zap.String("previous_status", current.Status.String()),
		zap.String("status", next.Status.String()),
		zap.String("source", string(ev.Source)))

	return result, nil
}
