package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func createJWT(secret string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

func createValidJWT(subject, email, role string) string {
	return createJWT(testSecret, jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})
}

func runMiddleware(t *testing.T, path, authHeader string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	config := JWTConfig{
		Secret:    testSecret,
		Logger:    zap.NewNop(),
		SkipPaths: []string{"/health", "/webhook"},
	}

	if next == nil {
		next = func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
		}
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := JWTMiddleware(config)(next)(c)
	assert.NoError(t, err)
	return rec
}

func TestJWTMiddleware_SuccessfulAuthentication(t *testing.T) {
	rec := runMiddleware(t, "/api/v1/qris", "Bearer "+createValidJWT("ops-1", "ops@example.com", "admin"),
		func(c echo.Context) error {
			user, err := GetUserFromContext(c)
			assert.NoError(t, err)
			assert.Equal(t, "ops-1", user.Subject)
			assert.Equal(t, "ops@example.com", user.Email)
			assert.Equal(t, "admin", user.Role)
			assert.Equal(t, "ops-1", c.Get("subject"))
			return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
		})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{
			name:     "missing header",
			header:   "",
			wantCode: "MISSING_AUTH_HEADER",
		},
		{
			name:     "not a bearer token",
			header:   "Basic dXNlcjpwYXNz",
			wantCode: "INVALID_AUTH_FORMAT",
		},
		{
			name:     "wrong secret",
			header:   "Bearer " + createJWT("other-secret", jwt.MapClaims{"sub": "ops-1"}),
			wantCode: "INVALID_TOKEN",
		},
		{
			name: "expired",
			header: "Bearer " + createJWT(testSecret, jwt.MapClaims{
				"sub": "ops-1",
				"exp": time.Now().Add(-time.Minute).Unix(),
			}),
			wantCode: "INVALID_TOKEN",
		},
		{
			name:     "garbage",
			header:   "Bearer not.a.jwt",
			wantCode: "INVALID_TOKEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			rec := runMiddleware(t, "/api/v1/qris", tt.header, func(c echo.Context) error {
				called = true
				return nil
			})

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantCode)
			assert.False(t, called)
		})
	}
}

func TestJWTMiddleware_RejectsNonHMACAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "ops-1"})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	assert.NoError(t, err)

	rec := runMiddleware(t, "/api/v1/qris", "Bearer "+tokenString, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestJWTMiddleware_SkipPaths(t *testing.T) {
	rec := runMiddleware(t, "/webhook/qris", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = runMiddleware(t, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetUserFromContext_NoUser(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := GetUserFromContext(c)
	assert.Error(t, err)
}
