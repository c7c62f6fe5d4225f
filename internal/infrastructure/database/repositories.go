package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/qris-gateway/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/qris-gateway/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Payments      domainRepo.QrisPaymentRepository
	WebhookEvents domainRepo.WebhookEventRepository
}

// NewRepositories creates postgres-backed repositories
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Payments:      repository.NewQrisPaymentRepository(db, logger),
		WebhookEvents: repository.NewWebhookEventRepository(db, logger),
	}
}

// NewMemoryRepositories creates in-process repositories; contents are lost on exit
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Payments:      repository.NewMemoryPaymentRepository(),
		WebhookEvents: repository.NewMemoryWebhookRepository(),
	}
}
