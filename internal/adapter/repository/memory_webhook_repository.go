package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
)

type memoryWebhookRepository struct {
	mu     sync.Mutex
	events map[string]*model.QrisWebhookEvent
	nextID int64
	now    func() time.Time
}

// NewMemoryWebhookRepository creates an in-process webhook event log
func NewMemoryWebhookRepository() repository.WebhookEventRepository {
	return &memoryWebhookRepository{
		events: make(map[string]*model.QrisWebhookEvent),
		now:    time.Now,
	}
}

func (r *memoryWebhookRepository) SaveEvent(ctx context.Context, event *model.QrisWebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.EventID]; ok {
		return false, nil
	}

	r.nextID++
	stored := *event
	stored.ID = r.nextID
	if stored.ProcessingStatus == "" {
		stored.ProcessingStatus = model.WebhookStatusPending
	}
	stored.CreatedAt = r.now()
	stored.UpdatedAt = stored.CreatedAt
	r.events[event.EventID] = &stored
	return true, nil
}

func (r *memoryWebhookRepository) GetEvent(ctx context.Context, eventID string) (*model.QrisWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[eventID]
	if !ok {
		return nil, nil
	}
	copied := *event
	return &copied, nil
}

func (r *memoryWebhookRepository) MarkProcessed(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}
	now := r.now()
	event.ProcessingStatus = model.WebhookStatusCompleted
	event.ProcessedAt = &now
	event.NextRetryAt = nil
	event.UpdatedAt = now
	return nil
}

func (r *memoryWebhookRepository) MarkFailed(ctx context.Context, eventID string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}
	now := r.now()
	nextRetry := now.Add(model.WebhookRetryDelay(event.RetryCount))
	message := cause.Error()

	event.ProcessingStatus = model.WebhookStatusFailed
	event.RetryCount++
	event.LastError = &message
	event.NextRetryAt = &nextRetry
	event.UpdatedAt = now
	return nil
}

func (r *memoryWebhookRepository) GetPendingEvents(ctx context.Context, now time.Time, limit int) ([]*model.QrisWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*model.QrisWebhookEvent
	for _, event := range r.events {
		if event.ProcessingStatus != model.WebhookStatusPending && event.ProcessingStatus != model.WebhookStatusFailed {
			continue
		}
		if event.NextRetryAt != nil && event.NextRetryAt.After(now) {
			continue
		}
		copied := *event
		pending = append(pending, &copied)
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}
