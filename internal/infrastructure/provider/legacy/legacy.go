package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/provider"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/transport"
)

const (
	tokenPath  = "/oauth/token"
	createPath = "/api/v1/qris/generate"
	statusPath = "/api/v1/qris/status/"

	defaultTokenTTL = 3600 * time.Second
)

// Metadata keys forwarded as customer fields
const (
	MetadataCustomerName  = "customer_name"
	MetadataCustomerPhone = "customer_phone"
)

// Config holds the OAuth credentials and terminal identity used by the legacy profile
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	MerchantID   string
	TerminalID   string
}

// LegacyProfile implements provider.GatewayProfile for the OAuth REST API
type LegacyProfile struct {
	config    Config
	transport transport.Transport
	logger    *zap.Logger
	now       func() time.Time
}

// NewLegacyProfile creates a new legacy REST profile
func NewLegacyProfile(config Config, transport transport.Transport, logger *zap.Logger) *LegacyProfile {
	return &LegacyProfile{
		config:    config,
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *LegacyProfile) GetProfileName() provider.ProfileType {
	return provider.ProfileTypeLegacy
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeToken performs the OAuth client-credentials grant
// POST /oauth/token
func (p *LegacyProfile) ExchangeToken(ctx context.Context) (*provider.AccessToken, error) {
	body, _ := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     p.config.ClientID,
		"client_secret": p.config.ClientSecret,
	})

	var result tokenResponse
	if err := p.call(ctx, "token", &transport.Request{
		Method: http.MethodPost,
		URL:    p.config.BaseURL + tokenPath,
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   body,
	}, &result); err != nil {
		return nil, err
	}

	if result.AccessToken == "" {
		return nil, &domainErrors.GatewayError{
			Operation:  "token",
			HTTPStatus: http.StatusOK,
			Message:    "response has no access_token",
		}
	}

	ttl := defaultTokenTTL
	if result.ExpiresIn > 0 {
		ttl = time.Duration(result.ExpiresIn) * time.Second
	}
	return &provider.AccessToken{Value: result.AccessToken, ExpiresIn: ttl}, nil
}

type generateRequest struct {
	Amount        json.Number `json:"amount"`
	MerchantID    string      `json:"merchant_id"`
	TerminalID    string      `json:"terminal_id"`
	InvoiceNumber string      `json:"invoice_number"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone"`
	Timestamp     string      `json:"timestamp"`
}

type generateResponse struct {
	TransactionID string `json:"transaction_id"`
	QrString      string `json:"qr_string"`
	QrImage       string `json:"qr_image"`
}

// CreateQR generates a dynamic QR. The caller reference is the invoice number.
// POST /api/v1/qris/generate
func (p *LegacyProfile) CreateQR(ctx context.Context, token string, req *provider.CreateQRRequest) (*provider.CreateQRResponse, error) {
	p.logger.Info("LegacyProfile: Generating QR",
		zap.String("reference", req.Reference),
		zap.String("amount", req.Amount.String()))

	body, err := json.Marshal(generateRequest{
		Amount:        json.Number(req.Amount.String()),
		MerchantID:    p.config.MerchantID,
		TerminalID:    p.config.TerminalID,
		InvoiceNumber: req.Reference,
		CustomerName:  req.Metadata[MetadataCustomerName],
		CustomerPhone: req.Metadata[MetadataCustomerPhone],
		Timestamp:     p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, &domainErrors.GatewayError{Operation: "create", Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	var result generateResponse
	if err := p.call(ctx, "create", &transport.Request{
		Method: http.MethodPost,
		URL:    p.config.BaseURL + createPath,
		Header: bearer(token),
		Body:   body,
	}, &result); err != nil {
		return nil, err
	}

	if result.QrString == "" {
		return nil, &domainErrors.GatewayError{
			Operation:  "create",
			HTTPStatus: http.StatusOK,
			Message:    "response has no qr_string",
		}
	}

	return &provider.CreateQRResponse{
		QrID:       result.TransactionID,
		QrContent:  result.QrString,
		QrImageURL: result.QrImage,
	}, nil
}

type statusResponse struct {
	TransactionID string           `json:"transaction_id"`
	ReferenceNo   string           `json:"reference_no"`
	Status        string           `json:"status"`
	StatusCode    string           `json:"status_code"`
	Amount        *decimal.Decimal `json:"amount"`
	PaidAt        string           `json:"paid_at"`
}

// QueryStatus reads the status of a QR
// GET /api/v1/qris/status/{qrId}
func (p *LegacyProfile) QueryStatus(ctx context.Context, token string, req *provider.StatusRequest) (*provider.StatusResponse, error) {
	var result statusResponse
	if err := p.call(ctx, "status", &transport.Request{
		Method: http.MethodGet,
		URL:    p.config.BaseURL + statusPath + url.PathEscape(req.QrID),
		Header: bearer(token),
	}, &result); err != nil {
		return nil, err
	}

	code := result.StatusCode
	if code == "" {
		code = StatusTextToCode(result.Status)
	}
	if code == "" {
		return nil, &domainErrors.GatewayError{
			Operation:  "status",
			HTTPStatus: http.StatusOK,
			Message:    "response has no status",
		}
	}

	// the settlement id is only meaningful once the payment succeeded
	var transactionID string
	if code == model.GatewayCodeSuccess {
		transactionID = result.ReferenceNo
		if transactionID == "" {
			transactionID = result.TransactionID
		}
	}

	return &provider.StatusResponse{
		StatusCode:    code,
		TransactionID: transactionID,
		PaidAt:        entity.ParseGatewayTime(result.PaidAt),
		Amount:        result.Amount,
	}, nil
}

// StatusTextToCode translates the legacy textual status into the shared code space.
// Unknown text is passed through and resolves to FAILED.
func StatusTextToCode(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "":
		return ""
	case "SUCCESS", "PAID", "COMPLETED":
		return model.GatewayCodeSuccess
	case "PENDING":
		return model.GatewayCodePending
	case "EXPIRED":
		return model.GatewayCodeExpired
	default:
		return status
	}
}

func bearer(token string) map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + token,
	}
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"code"`
	Message          string `json:"message"`
}

func (p *LegacyProfile) call(ctx context.Context, operation string, req *transport.Request, out interface{}) error {
	resp, err := p.transport.Send(ctx, req)
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		var errResp errorResponse
		_ = json.Unmarshal(resp.Body, &errResp)

		code := errResp.Code
		if code == "" {
			code = errResp.Error
		}
		message := errResp.Message
		if message == "" {
			message = errResp.ErrorDescription
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}

		p.logger.Error("LegacyProfile: Gateway returned error",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode),
			zap.String("code", code))

		return &domainErrors.GatewayError{
			Operation:   operation,
			HTTPStatus:  resp.StatusCode,
			GatewayCode: code,
			Message:     message,
			Body:        string(resp.Body),
		}
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &domainErrors.GatewayError{
			Operation:  operation,
			HTTPStatus: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response: %v", err),
			Body:       string(resp.Body),
		}
	}
	return nil
}
