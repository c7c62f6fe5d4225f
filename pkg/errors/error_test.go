package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAppError_WrapKeepsCode(t *testing.T) {
	cause := New("connection reset")
	appErr := NewAppError(ErrBadGateway, "Gateway rejected the request", cause)

	wrapped := Wrap(fmt.Errorf("create qr: %w", appErr), "Failed to create QR")

	assert.Equal(t, ErrBadGateway, CodeOf(wrapped))
	assert.True(t, Is(wrapped, cause))
	assert.Equal(t, "Gateway rejected the request: connection reset", appErr.Error())
	assert.Equal(t, "Gateway rejected the request", appErr.Message())
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Equal(t, ErrInternal, CodeOf(New("plain")))
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"conflict", NewAppError(ErrConflict, "Reference already exists", nil), http.StatusConflict, ErrConflict},
		{"bad gateway", NewAppError(ErrBadGateway, "x", nil), http.StatusBadGateway, ErrBadGateway},
		{"gateway timeout", NewAppError(ErrGatewayTimeout, "x", nil), http.StatusGatewayTimeout, ErrGatewayTimeout},
		{"pending", NewAppError(ErrPending, "x", nil), http.StatusAccepted, ErrPending},
		{"plain error", New("boom"), http.StatusInternalServerError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := ToHTTPError(tt.err)
			assert.Equal(t, tt.wantStatus, httpErr.Code)
			body, ok := httpErr.Message.(echo.Map)
			assert.True(t, ok)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}

	assert.Nil(t, ToHTTPError(nil))
}

func TestGetCodeMapping_Unknown(t *testing.T) {
	httpStatus, grpcCode := GetCodeMapping("SOMETHING_ELSE")
	assert.Equal(t, 500, httpStatus)
	assert.Equal(t, 13, grpcCode)
}

func TestLogError_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	LogError(logger, NewAppError(ErrNotFound, "Payment not found", nil), "lookup failed")
	LogError(logger, NewAppError(ErrBadGateway, "Gateway rejected the request", nil), "create failed")
	LogError(logger, nil, "ignored")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, ErrNotFound, entries[0].ContextMap()["error_code"])
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	}
}
