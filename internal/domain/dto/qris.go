package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
)

// CreateQRRequest is the body of POST /api/v1/qris
type CreateQRRequest struct {
	Reference string            `json:"reference" validate:"required,max=64"`
	Amount    decimal.Decimal   `json:"amount"`
	Metadata  map[string]string `json:"metadata,omitempty" validate:"omitempty,max=20,dive,keys,max=64,endkeys,max=255"`
}

// PollRequest is the optional body of POST /api/v1/qris/:reference/poll
type PollRequest struct {
	MaxAttempts     int `json:"maxAttempts" validate:"omitempty,min=1,max=120"`
	IntervalSeconds int `json:"intervalSeconds" validate:"omitempty,min=1,max=60"`
}

// PaymentResponse is the API view of a QRIS payment
type PaymentResponse struct {
	QrID          string              `json:"qrId"`
	Reference     string              `json:"reference"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	QrContent     string              `json:"qrContent"`
	QrImageURL    string              `json:"qrImageUrl,omitempty"`
	Status        model.PaymentStatus `json:"status"`
	TransactionID string              `json:"transactionId,omitempty"`
	ExpiredAt     time.Time           `json:"expiredAt"`
	PaidAt        *time.Time          `json:"paidAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     *time.Time          `json:"updatedAt,omitempty"`
}

// NewPaymentResponse maps the stored record to its API view
func NewPaymentResponse(p *model.QrisPayment) *PaymentResponse {
	resp := &PaymentResponse{
		QrID:       p.QrID,
		Reference:  p.Reference,
		Amount:     p.Amount,
		Currency:   p.Currency,
		QrContent:  p.QrContent,
		QrImageURL: p.QrImageURL,
		Status:     p.Status,
		ExpiredAt:  p.ExpiredAt,
		PaidAt:     p.PaidAt,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.TransactionID != nil {
		resp.TransactionID = *p.TransactionID
	}
	return resp
}
