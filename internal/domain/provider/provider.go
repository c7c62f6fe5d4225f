package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// GatewayProfile is one wire protocol of the bank QRIS API (SNAP signed API or legacy REST).
// Profiles build and parse requests; token caching and status mapping live outside them.
type GatewayProfile interface {
	// ExchangeToken performs the signed client-credentials exchange
	ExchangeToken(ctx context.Context) (*AccessToken, error)

	// CreateQR creates a dynamic QR. Reference is sent as the gateway's partner
	// reference on every attempt so retries are idempotent on the gateway side.
	CreateQR(ctx context.Context, token string, req *CreateQRRequest) (*CreateQRResponse, error)

	// QueryStatus reads the current status of a QR
	QueryStatus(ctx context.Context, token string, req *StatusRequest) (*StatusResponse, error)

	// GetProfileName returns the profile name
	GetProfileName() ProfileType
}

// AccessToken is a bearer token as reported by the gateway
type AccessToken struct {
	Value string
	// ExpiresIn is the reported time to live; zero means the gateway did not report one
	ExpiresIn time.Duration
}

// CreateQRRequest is a profile-agnostic QR creation request
type CreateQRRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Metadata    map[string]string
	ExpiresAt   time.Time
	CallbackURL string
}

// CreateQRResponse carries the opaque QR payload and the gateway-assigned id
type CreateQRResponse struct {
	// QrID is empty when the gateway did not assign one
	QrID      string
	QrContent string
	// QrImageURL is set only when the gateway renders the image itself
	QrImageURL string
}

// StatusRequest identifies the QR to query
type StatusRequest struct {
	QrID      string
	Reference string
}

// StatusResponse carries the raw gateway status code and settlement detail
type StatusResponse struct {
	StatusCode    string
	TransactionID string
	PaidAt        *time.Time
	Amount        *decimal.Decimal
}

// ProfileType represents the gateway protocol profile
type ProfileType string

const (
	ProfileTypeSNAP   ProfileType = "snap"
	ProfileTypeLegacy ProfileType = "legacy"
)
