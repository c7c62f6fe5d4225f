package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/provider"
)

// TokenSource supplies bearer tokens for gateway calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// ClientOptions are the instance-wide values applied to every request
type ClientOptions struct {
	Currency       string
	CallbackURL    string
	QRImageBaseURL string
}

// Client is the payment gateway client. It authenticates every call through the
// token source and delegates the wire format to the configured profile.
type Client struct {
	profile provider.GatewayProfile
	tokens  TokenSource
	options ClientOptions
	logger  *zap.Logger
	now     func() time.Time
}

// NewClient creates a gateway client
func NewClient(profile provider.GatewayProfile, tokens TokenSource, options ClientOptions, logger *zap.Logger) *Client {
	return &Client{
		profile: profile,
		tokens:  tokens,
		options: options,
		logger:  logger,
		now:     time.Now,
	}
}

// Profile returns the active gateway profile name
func (c *Client) Profile() provider.ProfileType {
	return c.profile.GetProfileName()
}

// CreateQR creates a dynamic QR for the reference. The gateway id falls back to
// the reference when the gateway does not assign one.
func (c *Client) CreateQR(ctx context.Context, req *provider.CreateQRRequest) (*provider.CreateQRResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	if req.Currency == "" {
		req.Currency = c.options.Currency
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.options.CallbackURL
	}

	resp, err := c.profile.CreateQR(ctx, token, req)
	if err != nil {
		c.handleError(err)
		return nil, err
	}

	if resp.QrID == "" {
		resp.QrID = req.Reference
	}
	if resp.QrImageURL == "" && c.options.QRImageBaseURL != "" {
		resp.QrImageURL = c.options.QRImageBaseURL + url.QueryEscape(resp.QrContent)
	}

	c.logger.Info("QR created",
		zap.String("profile", string(c.profile.GetProfileName())),
		zap.String("reference", req.Reference),
		zap.String("qr_id", resp.QrID))

	return resp, nil
}

// QueryStatus asks the gateway for the current status and returns it as a poll event
func (c *Client) QueryStatus(ctx context.Context, qrID, reference string) (*entity.StatusEvent, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.profile.QueryStatus(ctx, token, &provider.StatusRequest{QrID: qrID, Reference: reference})
	if err != nil {
		c.handleError(err)
		return nil, err
	}

	c.logger.Debug("Status queried",
		zap.String("qr_id", qrID),
		zap.String("status_code", resp.StatusCode))

	return entity.NewStatusEvent(qrID, entity.EventSourcePoll, resp.StatusCode, resp.TransactionID, resp.PaidAt, c.now()), nil
}

// handleError drops the cached token when the gateway rejects it
func (c *Client) handleError(err error) {
	var gatewayErr *domainErrors.GatewayError
	if errors.As(err, &gatewayErr) && gatewayErr.HTTPStatus == http.StatusUnauthorized {
		c.logger.Warn("Gateway rejected access token, invalidating session",
			zap.String("operation", gatewayErr.Operation))
		c.tokens.Invalidate()
	}
}
