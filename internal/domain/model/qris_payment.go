package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// QrisPayment is the locally stored record of one dynamic QR payment.
// Reference is the caller's idempotency key and never changes after creation.
type QrisPayment struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	QrID            string            `gorm:"column:qr_id;size:100;not null;uniqueIndex" json:"qr_id"`
	Reference       string            `gorm:"size:100;not null;uniqueIndex" json:"reference"`
	Amount          decimal.Decimal   `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency        string            `gorm:"size:3;default:'IDR'" json:"currency"`
	QrContent       string            `gorm:"type:text;not null" json:"qr_content"`
	QrImageURL      string            `gorm:"type:text" json:"qr_image_url,omitempty"`
	Status          PaymentStatus     `gorm:"size:20;not null;index" json:"status"`
	LastStatusCode  *string           `gorm:"size:10" json:"last_status_code,omitempty"`
	LastEventSource *string           `gorm:"size:20" json:"last_event_source,omitempty"`
	TransactionID   *string           `gorm:"size:100" json:"transaction_id,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	ExpiredAt       time.Time         `gorm:"not null" json:"expired_at"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

// TableName specifies the table name for GORM
func (QrisPayment) TableName() string {
	return "qris_payments"
}

// Clone returns a copy that shares no pointers with the original
func (p *QrisPayment) Clone() *QrisPayment {
	if p == nil {
		return nil
	}
	c := *p
	c.LastStatusCode = cloneString(p.LastStatusCode)
	c.LastEventSource = cloneString(p.LastEventSource)
	c.TransactionID = cloneString(p.TransactionID)
	c.PaidAt = cloneTime(p.PaidAt)
	c.UpdatedAt = cloneTime(p.UpdatedAt)
	if p.Metadata != nil {
		c.Metadata = make(datatypes.JSONMap, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// HasTransactionID reports whether a settlement transaction id is recorded
func (p *QrisPayment) HasTransactionID() bool {
	return p.TransactionID != nil && *p.TransactionID != ""
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
