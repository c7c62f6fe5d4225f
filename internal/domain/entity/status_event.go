package entity

import (
	"time"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
)

// EventSource identifies the channel a status update arrived on
type EventSource string

const (
	EventSourcePoll    EventSource = "poll"
	EventSourceWebhook EventSource = "webhook"
)

// StatusEvent is one status observation for a payment. It is consumed by the
// reconciliation engine and not persisted on its own.
type StatusEvent struct {
	QrID          string
	Source        EventSource
	RawCode       string
	TransactionID string
	PaidAt        *time.Time
	ReceivedAt    time.Time
}

// NewStatusEvent builds an event stamped with its arrival time
func NewStatusEvent(qrID string, source EventSource, rawCode, transactionID string, paidAt *time.Time, receivedAt time.Time) *StatusEvent {
	return &StatusEvent{
		QrID:          qrID,
		Source:        source,
		RawCode:       rawCode,
		TransactionID: transactionID,
		PaidAt:        paidAt,
		ReceivedAt:    receivedAt,
	}
}

// Status resolves the raw gateway code through the shared status table
func (e *StatusEvent) Status() model.PaymentStatus {
	return model.ResolveStatus(e.RawCode)
}

// WebhookNotification is the decoded body of a gateway callback.
// Either QrID or OriginalReferenceNo identifies the payment.
type WebhookNotification struct {
	QrID                       string `json:"qrId"`
	OriginalReferenceNo        string `json:"originalReferenceNo"`
	OriginalPartnerReferenceNo string `json:"originalPartnerReferenceNo"`
	TransactionStatusCode      string `json:"transactionStatusCode"`
	ReferenceNo                string `json:"referenceNo"`
	TransactionDate            string `json:"transactionDate"`
}

// PaymentIdentifier returns qrId, falling back to originalReferenceNo
func (n *WebhookNotification) PaymentIdentifier() string {
	if n.QrID != "" {
		return n.QrID
	}
	return n.OriginalReferenceNo
}

// StatusChange is published after a transition has been applied
type StatusChange struct {
	QrID           string              `json:"qr_id"`
	Reference      string              `json:"reference"`
	PreviousStatus model.PaymentStatus `json:"previous_status"`
	Status         model.PaymentStatus `json:"status"`
	TransactionID  string              `json:"transaction_id,omitempty"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`
	Source         EventSource         `json:"source"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

var gatewayTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseGatewayTime parses a gateway transaction date. Empty or unparseable input yields nil.
func ParseGatewayTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range gatewayTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
