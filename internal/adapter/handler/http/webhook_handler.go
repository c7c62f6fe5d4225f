package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/qris-gateway/internal/usecase"
	pkgErrors "github.com/wekeepgrowing/qris-gateway/pkg/errors"
)

// WebhookProcessor stores and applies one webhook delivery
type WebhookProcessor interface {
	HandleDelivery(ctx context.Context, delivery *usecase.WebhookDelivery) (*usecase.ReconcileResult, error)
}

// SignatureVerifier checks the signature header against the raw body
type SignatureVerifier interface {
	Verify(body []byte, signature string) error
}

// WebhookHandler receives QRIS payment notifications from the gateway
type WebhookHandler struct {
	logger          *zap.Logger
	processor       WebhookProcessor
	verifier        SignatureVerifier
	signatureHeader string
}

// NewWebhookHandler creates the handler. A nil verifier accepts unsigned deliveries.
func NewWebhookHandler(logger *zap.Logger, processor WebhookProcessor, verifier SignatureVerifier, signatureHeader string) *WebhookHandler {
	return &WebhookHandler{
		logger:          logger,
		processor:       processor,
		verifier:        verifier,
		signatureHeader: signatureHeader,
	}
}

// HandleWebhook handles POST /webhook/qris
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			// body limit exceeded while streaming
			return httpErr
		}
		h.logger.Error("Error reading webhook body", zap.Error(err))
		return respondError(c, h.logger,
			pkgErrors.NewAppError(pkgErrors.ErrInvalidArgument, "Error reading request body", err),
			"Failed to read webhook body")
	}

	if h.verifier != nil {
		signature := c.Request().Header.Get(h.signatureHeader)
		if err := h.verifier.Verify(body, signature); err != nil {
			return respondError(c, h.logger, err, "Webhook signature verification failed",
				zap.String("remote_ip", c.RealIP()),
				zap.Bool("signature_present", signature != ""))
		}
	}

	result, err := h.processor.HandleDelivery(c.Request().Context(), &usecase.WebhookDelivery{
		Body:      body,
		IPAddress: c.RealIP(),
	})
	if err != nil {
		return respondError(c, h.logger, err, "Failed to process webhook",
			zap.String("remote_ip", c.RealIP()))
	}

	if result == nil {
		h.logger.Debug("Webhook redelivery acknowledged")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
