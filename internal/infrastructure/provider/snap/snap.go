package snap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/provider"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/crypto"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/transport"
)

const (
	tokenPath  = "/openapi/auth/v2.0/access-token/b2b"
	createPath = "/openapi/qris/v1.0/qr-code-dynamic"
	statusPath = "/openapi/qris/v1.0/qr-code-dynamic/status"

	// TimestampLayout is the X-TIMESTAMP and validityPeriod format
	TimestampLayout = "2006-01-02T15:04:05.000Z"

	qrisServiceCode = "47"
)

// Config holds the credentials and merchant labels used by the SNAP profile
type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	MerchantID    string
	StoreLabel    string
	TerminalLabel string
}

// SNAPProfile implements provider.GatewayProfile for the signed SNAP API
type SNAPProfile struct {
	config    Config
	signer    crypto.SignatureService
	transport transport.Transport
	logger    *zap.Logger
	now       func() time.Time
}

// NewSNAPProfile creates a new SNAP profile
func NewSNAPProfile(config Config, signer crypto.SignatureService, transport transport.Transport, logger *zap.Logger) *SNAPProfile {
	return &SNAPProfile{
		config:    config,
		signer:    signer,
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces time.Now for timestamps
func (p *SNAPProfile) WithClock(now func() time.Time) *SNAPProfile {
	p.now = now
	return p
}

func (p *SNAPProfile) GetProfileName() provider.ProfileType {
	return provider.ProfileTypeSNAP
}

type tokenResponse struct {
	ResponseCode    string      `json:"responseCode"`
	ResponseMessage string      `json:"responseMessage"`
	AccessToken     string      `json:"accessToken"`
	TokenType       string      `json:"tokenType"`
	ExpiresIn       json.Number `json:"expiresIn"`
}

// ExchangeToken requests a B2B access token
// POST /openapi/auth/v2.0/access-token/b2b
func (p *SNAPProfile) ExchangeToken(ctx context.Context) (*provider.AccessToken, error) {
	timestamp := p.timestamp()
	signature := p.signer.Sign(p.config.ClientID+"|"+timestamp, p.config.ClientSecret)

	body, _ := json.Marshal(map[string]string{"grantType": "client_credentials"})

	var result tokenResponse
	if err := p.call(ctx, "token", &transport.Request{
		Method: http.MethodPost,
		URL:    p.config.BaseURL + tokenPath,
		Header: map[string]string{
			"Content-Type": "application/json",
			"X-TIMESTAMP":  timestamp,
			"X-CLIENT-KEY": p.config.ClientID,
			"X-SIGNATURE":  signature,
		},
		Body: body,
	}, &result); err != nil {
		return nil, err
	}

	if result.AccessToken == "" {
		return nil, &domainErrors.GatewayError{
			Operation:   "token",
			HTTPStatus:  http.StatusOK,
			GatewayCode: result.ResponseCode,
			Message:     "response has no accessToken",
		}
	}

	token := &provider.AccessToken{Value: result.AccessToken}
	if seconds, err := result.ExpiresIn.Int64(); err == nil && seconds > 0 {
		token.ExpiresIn = time.Duration(seconds) * time.Second
	}
	return token, nil
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type createRequest struct {
	PartnerReferenceNo string            `json:"partnerReferenceNo"`
	Amount             amount            `json:"amount"`
	MerchantID         string            `json:"merchantId"`
	StoreLabel         string            `json:"storeLabel"`
	TerminalLabel      string            `json:"terminalLabel"`
	ValidityPeriod     string            `json:"validityPeriod"`
	AdditionalInfo     map[string]string `json:"additionalInfo,omitempty"`
}

type createResponse struct {
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	ReferenceNo     string `json:"referenceNo"`
	QrID            string `json:"qrId"`
	QrContent       string `json:"qrContent"`
	QrURL           string `json:"qrUrl"`
}

// CreateQR generates a dynamic QR
// POST /openapi/qris/v1.0/qr-code-dynamic
func (p *SNAPProfile) CreateQR(ctx context.Context, token string, req *provider.CreateQRRequest) (*provider.CreateQRResponse, error) {
	p.logger.Info("SNAPProfile: Creating dynamic QR",
		zap.String("reference", req.Reference),
		zap.String("amount", req.Amount.StringFixed(2)))

	payload := createRequest{
		PartnerReferenceNo: req.Reference,
		Amount: amount{
			Value:    req.Amount.StringFixed(2),
			Currency: req.Currency,
		},
		MerchantID:     p.config.MerchantID,
		StoreLabel:     p.config.StoreLabel,
		TerminalLabel:  p.config.TerminalLabel,
		ValidityPeriod: req.ExpiresAt.UTC().Format(TimestampLayout),
	}
	if req.CallbackURL != "" || len(req.Metadata) > 0 {
		payload.AdditionalInfo = make(map[string]string, len(req.Metadata)+1)
		for key, value := range req.Metadata {
			payload.AdditionalInfo[key] = value
		}
		if req.CallbackURL != "" {
			payload.AdditionalInfo["callbackUrl"] = req.CallbackURL
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &domainErrors.GatewayError{Operation: "create", Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	var result createResponse
	if err := p.call(ctx, "create", p.signedRequest(http.MethodPost, createPath, token, req.Reference, body), &result); err != nil {
		return nil, err
	}

	if result.QrContent == "" {
		return nil, &domainErrors.GatewayError{
			Operation:   "create",
			HTTPStatus:  http.StatusOK,
			GatewayCode: result.ResponseCode,
			Message:     "response has no qrContent",
		}
	}

	qrID := result.QrID
	if qrID == "" {
		qrID = result.ReferenceNo
	}

	return &provider.CreateQRResponse{
		QrID:       qrID,
		QrContent:  result.QrContent,
		QrImageURL: result.QrURL,
	}, nil
}

type statusRequest struct {
	OriginalPartnerReferenceNo string `json:"originalPartnerReferenceNo"`
	OriginalReferenceNo        string `json:"originalReferenceNo"`
	ServiceCode                string `json:"serviceCode"`
}

type statusResponse struct {
	ResponseCode          string  `json:"responseCode"`
	ResponseMessage       string  `json:"responseMessage"`
	TransactionStatusCode string  `json:"transactionStatusCode"`
	ReferenceNo           string  `json:"referenceNo"`
	TransactionDate       string  `json:"transactionDate"`
	Amount                *amount `json:"amount"`
}

// QueryStatus reads the status of a dynamic QR
// POST /openapi/qris/v1.0/qr-code-dynamic/status
func (p *SNAPProfile) QueryStatus(ctx context.Context, token string, req *provider.StatusRequest) (*provider.StatusResponse, error) {
	body, _ := json.Marshal(statusRequest{
		OriginalPartnerReferenceNo: req.Reference,
		OriginalReferenceNo:        req.QrID,
		ServiceCode:                qrisServiceCode,
	})

	var result statusResponse
	if err := p.call(ctx, "status", p.signedRequest(http.MethodPost, statusPath, token, req.QrID, body), &result); err != nil {
		return nil, err
	}

	if result.TransactionStatusCode == "" {
		return nil, &domainErrors.GatewayError{
			Operation:   "status",
			HTTPStatus:  http.StatusOK,
			GatewayCode: result.ResponseCode,
			Message:     "response has no transactionStatusCode",
		}
	}

	resp := &provider.StatusResponse{
		StatusCode: result.TransactionStatusCode,
		PaidAt:     entity.ParseGatewayTime(result.TransactionDate),
	}
	if result.TransactionStatusCode == model.GatewayCodeSuccess {
		resp.TransactionID = result.ReferenceNo
	}
	if result.Amount != nil {
		if value, err := decimal.NewFromString(result.Amount.Value); err == nil {
			resp.Amount = &value
		}
	}
	return resp, nil
}

// signedRequest builds a transactional request signed over
// METHOD:path:token:lowerhex(sha256(body)):timestamp
func (p *SNAPProfile) signedRequest(method, path, token, externalID string, body []byte) *transport.Request {
	timestamp := p.timestamp()
	stringToSign := strings.Join([]string{
		method,
		path,
		token,
		crypto.SHA256Hex(body),
		timestamp,
	}, ":")

	return &transport.Request{
		Method: method,
		URL:    p.config.BaseURL + path,
		Header: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + token,
			"X-TIMESTAMP":   timestamp,
			"X-PARTNER-ID":  p.config.MerchantID,
			"X-EXTERNAL-ID": externalID,
			"X-SIGNATURE":   p.signer.Sign(stringToSign, p.config.ClientSecret),
		},
		Body: body,
	}
}

type errorResponse struct {
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}

func (p *SNAPProfile) call(ctx context.Context, operation string, req *transport.Request, out interface{}) error {
	resp, err := p.transport.Send(ctx, req)
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		var errResp errorResponse
		_ = json.Unmarshal(resp.Body, &errResp)

		p.logger.Error("SNAPProfile: Gateway returned error",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_code", errResp.ResponseCode),
			zap.String("response_message", errResp.ResponseMessage))

		message := errResp.ResponseMessage
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &domainErrors.GatewayError{
			Operation:   operation,
			HTTPStatus:  resp.StatusCode,
			GatewayCode: errResp.ResponseCode,
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

func (p *SNAPProfile) timestamp() string {
	return p.now().UTC().Format(TimestampLayout)
}
