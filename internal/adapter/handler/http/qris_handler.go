package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/dto"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/model"
	"github.com/wekeepgrowing/qris-gateway/internal/usecase"
	pkgErrors "github.com/wekeepgrowing/qris-gateway/pkg/errors"
)

// QrisUsecase is the part of the QRIS service exposed over HTTP
type QrisUsecase interface {
	CreateQR(ctx context.Context, input usecase.CreateQRInput) (*model.QrisPayment, error)
	CheckStatus(ctx context.Context, reference string, forceRemote bool) (*model.QrisPayment, error)
	PollByReference(ctx context.Context, reference string, maxAttempts int, interval time.Duration) (*model.QrisPayment, error)
}

type QrisHandler struct {
	service QrisUsecase
	logger  *zap.Logger
}

func NewQrisHandler(service QrisUsecase, logger *zap.Logger) *QrisHandler {
	return &QrisHandler{
		service: service,
		logger:  logger,
	}
}

// CreateQR handles POST /api/v1/qris
func (h *QrisHandler) CreateQR(c echo.Context) error {
	var req dto.CreateQRRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.logger,
			pkgErrors.NewAppError(pkgErrors.ErrInvalidArgument, "Invalid request body", err),
			"Failed to bind create QR request")
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, h.logger,
			pkgErrors.NewAppError(pkgErrors.ErrInvalidArgument, err.Error(), err),
			"Create QR request failed validation")
	}

	payment, err := h.service.CreateQR(c.Request().Context(), usecase.CreateQRInput{
		Reference: req.Reference,
		Amount:    req.Amount,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return respondError(c, h.logger, err, "Failed to create QR",
			zap.String("reference", req.Reference))
	}

	return c.JSON(http.StatusCreated, dto.NewPaymentResponse(payment))
}

// GetStatus handles GET /api/v1/qris/:reference/status
func (h *QrisHandler) GetStatus(c echo.Context) error {
	reference := c.Param("reference")

	force := false
	if raw := c.QueryParam("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return respondError(c, h.logger,
				pkgErrors.NewAppError(pkgErrors.ErrInvalidArgument, "force must be true or false", err),
				"Invalid force parameter")
		}
		force = parsed
	}

	payment, err := h.service.CheckStatus(c.Request().Context(), reference, force)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to check payment status",
			zap.String("reference", reference),
			zap.Bool("force", force))
	}

	return c.JSON(http.StatusOK, dto.NewPaymentResponse(payment))
}

// Poll handles POST /api/v1/qris/:reference/poll. A payment still pending after
// the last attempt is returned with 202.
func (h *QrisHandler) Poll(c echo.Context) error {
	reference := c.Param("reference")

	var req dto.PollRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return respondError(c, h.logger,
				pkgErrors.NewAppError(pkgErrors.ErrInvalidArgument, "Invalid request body", err),
				"Failed to bind poll request")
		}
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, h.logger,
			pkgErrors.NewAppError(pkgErrors.ErrInvalidArgument, err.Error(), err),
			"Poll request failed validation")
	}

	interval := time.Duration(req.IntervalSeconds) * time.Second
	payment, err := h.service.PollByReference(c.Request().Context(), reference, req.MaxAttempts, interval)
	if err != nil {
		if domainErrors.IsTimeout(err) && payment != nil {
			h.logger.Info("Polling exhausted, payment still pending",
				zap.String("reference", reference),
				zap.Error(err))
			return c.JSON(http.StatusAccepted, dto.NewPaymentResponse(payment))
		}
		return respondError(c, h.logger, err, "Failed to poll payment status",
			zap.String("reference", reference))
	}

	return c.JSON(http.StatusOK, dto.NewPaymentResponse(payment))
}
