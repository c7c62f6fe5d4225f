package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
)

// memoryPaymentRepository keeps payments in process memory. Records are cloned on
// the way in and out so callers never share state with the store.
type memoryPaymentRepository struct {
	mu          sync.RWMutex
	byReference map[string]*model.QrisPayment
	qrIndex     map[string]string
}

// NewMemoryPaymentRepository creates an in-process payment repository
func NewMemoryPaymentRepository() repository.QrisPaymentRepository {
	return &memoryPaymentRepository{
		byReference: make(map[string]*model.QrisPayment),
		qrIndex:     make(map[string]string),
	}
}

func (r *memoryPaymentRepository) GetByReference(ctx context.Context, reference string) (*model.QrisPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byReference[reference].Clone(), nil
}

func (r *memoryPaymentRepository) GetByQrID(ctx context.Context, qrID string) (*model.QrisPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reference, ok := r.qrIndex[qrID]
	if !ok {
		return nil, nil
	}
	return r.byReference[reference].Clone(), nil
}

func (r *memoryPaymentRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byReference[reference]
	return ok, nil
}

func (r *memoryPaymentRepository) Create(ctx context.Context, payment *model.QrisPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byReference[payment.Reference]; ok {
		return repository.ErrDuplicateKey
	}
	return r.insert(payment)
}

func (r *memoryPaymentRepository) Upsert(ctx context.Context, payment *model.QrisPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byReference[payment.Reference]
	if !ok {
		return r.insert(payment)
	}

	updated := existing.Clone()
	applyMutableColumns(updated, payment)
	r.byReference[updated.Reference] = updated
	return nil
}

// insert stores a new record; callers hold the write lock
func (r *memoryPaymentRepository) insert(payment *model.QrisPayment) error {
	if _, taken := r.qrIndex[payment.QrID]; taken {
		return repository.ErrDuplicateKey
	}

	stored := payment.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
		payment.ID = stored.ID
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
		payment.CreatedAt = stored.CreatedAt
	}
	r.byReference[stored.Reference] = stored
	r.qrIndex[stored.QrID] = stored.Reference
	return nil
}

// applyMutableColumns copies the columns an upsert may change
func applyMutableColumns(dst, src *model.QrisPayment) {
	c := src.Clone()
	dst.Status = c.Status
	dst.LastStatusCode = c.LastStatusCode
	dst.LastEventSource = c.LastEventSource
	dst.TransactionID = c.TransactionID
	dst.PaidAt = c.PaidAt
	dst.UpdatedAt = c.UpdatedAt
}
