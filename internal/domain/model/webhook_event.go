package model

import (
	"database/sql/driver"
	"time"

	"gorm.io/datatypes"
)

// WebhookStatus represents the processing status of a webhook
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusCompleted  WebhookStatus = "completed"
	WebhookStatusFailed     WebhookStatus = "failed"
)

// Scan implements sql.Scanner interface
func (w *WebhookStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*w = WebhookStatus(v)
	case []byte:
		*w = WebhookStatus(v)
	default:
		*w = WebhookStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (w WebhookStatus) Value() (driver.Value, error) {
	return string(w), nil
}

// QrisWebhookEvent is the raw log of one accepted webhook delivery.
// EventID is the SHA-256 digest of the body so redeliveries collapse into one row.
type QrisWebhookEvent struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID          string         `gorm:"unique;size:64;not null" json:"event_id"`
	QrID             *string        `gorm:"size:100;index" json:"qr_id,omitempty"`
	StatusCode       *string        `gorm:"size:10" json:"status_code,omitempty"`
	ProcessingStatus WebhookStatus  `gorm:"size:20;default:'pending';index" json:"processing_status"`
	Payload          datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	RetryCount       int            `gorm:"default:0" json:"retry_count"`
	LastError        *string        `json:"last_error,omitempty"`
	NextRetryAt      *time.Time     `json:"next_retry_at,omitempty"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
	IPAddress        *string        `gorm:"size:45" json:"ip_address,omitempty"`
	ReceivedAt       time.Time      `gorm:"not null" json:"received_at"`
	CreatedAt        time.Time      `gorm:"default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (QrisWebhookEvent) TableName() string {
	return "qris_webhook_events"
}

const (
	webhookRetryBase = 5 * time.Minute
	webhookRetryCap  = 24 * time.Hour
)

// WebhookRetryDelay returns the backoff before the next replay: 5m·2^n capped at 24h,
// where n is the number of earlier failures.
func WebhookRetryDelay(previousFailures int) time.Duration {
	if previousFailures < 0 {
		previousFailures = 0
	}
	if previousFailures >= 9 {
		return webhookRetryCap
	}
	delay := webhookRetryBase << previousFailures
	if delay > webhookRetryCap {
		return webhookRetryCap
	}
	return delay
}
