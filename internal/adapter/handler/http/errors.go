package http

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	pkgErrors "github.com/wekeepgrowing/qris-gateway/pkg/errors"
)

// toAppError maps domain failures onto API error codes
func toAppError(err error) *pkgErrors.AppError {
	var (
		appErr       *pkgErrors.AppError
		duplicateErr *domainErrors.DuplicateReferenceError
		authErr      *domainErrors.AuthFailureError
		transportErr *domainErrors.TransportError
		gatewayErr   *domainErrors.GatewayError
		timeoutErr   *domainErrors.TimeoutError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &duplicateErr):
		return pkgErrors.NewAppError(pkgErrors.ErrConflict, "Reference already exists", err)
	case errors.Is(err, domainErrors.ErrPaymentNotFound):
		return pkgErrors.NewAppError(pkgErrors.ErrNotFound, "Payment not found", err)
	case errors.Is(err, domainErrors.ErrInvalidAmount),
		errors.Is(err, domainErrors.ErrMissingReference),
		errors.Is(err, domainErrors.ErrMissingPaymentIdentifier),
		errors.Is(err, domainErrors.ErrInvalidWebhookPayload):
		return pkgErrors.NewAppError(pkgErrors.ErrInvalidArgument, err.Error(), err)
	case errors.Is(err, domainErrors.ErrInvalidWebhookSignature):
		return pkgErrors.NewAppError(pkgErrors.ErrUnauthenticated, "Invalid webhook signature", err)
	case errors.As(err, &authErr):
		return pkgErrors.NewAppError(pkgErrors.ErrBadGateway, "Gateway authentication failed", err)
	case errors.As(err, &transportErr):
		return pkgErrors.NewAppError(pkgErrors.ErrGatewayTimeout, "Gateway unreachable", err)
	case errors.As(err, &gatewayErr):
		return pkgErrors.NewAppError(pkgErrors.ErrBadGateway, "Gateway rejected the request", err)
	case errors.As(err, &timeoutErr):
		return pkgErrors.NewAppError(pkgErrors.ErrPending, "Payment is still pending", err)
	default:
		return pkgErrors.NewAppError(pkgErrors.ErrInternal, "Internal server error", err)
	}
}

// respondError logs err and writes the {"error", "code"} body
func respondError(c echo.Context, logger *zap.Logger, err error, msg string, fields ...zap.Field) error {
	appErr := toAppError(err)
	pkgErrors.LogError(logger, appErr, msg, fields...)
	httpErr := pkgErrors.ToHTTPError(appErr)
	return c.JSON(httpErr.Code, httpErr.Message)
}
