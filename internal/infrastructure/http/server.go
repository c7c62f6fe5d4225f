package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/qris-gateway/internal/adapter/handler/http"
	"github.com/wekeepgrowing/qris-gateway/internal/config"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/crypto"
	"github.com/wekeepgrowing/qris-gateway/internal/middleware/auth"
	"github.com/wekeepgrowing/qris-gateway/pkg/logger"
)

type Server struct {
	config *config.Config
	logger *zap.Logger
	echo   *echo.Echo
}

func NewServer(cfg *config.Config, log *zap.Logger, qris handlers.QrisUsecase, webhooks handlers.WebhookProcessor) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()
	logger.WithEchoLogger(e, log)

	if cfg.Server.HTTP.ReadTimeout > 0 {
		e.Server.ReadTimeout = cfg.Server.HTTP.ReadTimeout
	}
	if cfg.Server.HTTP.WriteTimeout > 0 {
		e.Server.WriteTimeout = cfg.Server.HTTP.WriteTimeout
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.NewEchoRequestLogger(log))
	if cfg.Service.ClientURL != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{cfg.Service.ClientURL},
			AllowMethods: []string{echo.GET, echo.POST},
		}))
	}

	s := &Server{
		config: cfg,
		logger: log,
		echo:   e,
	}

	var verifier handlers.SignatureVerifier
	if cfg.Webhook.VerifySignature {
		v, err := crypto.NewWebhookVerifier(cfg.Webhook.Secret, cfg.Webhook.Encoding)
		if err != nil {
			return nil, err
		}
		verifier = v
	} else {
		log.Warn("Webhook signature verification is disabled")
	}

	s.setupRoutes(
		handlers.NewQrisHandler(qris, log),
		handlers.NewWebhookHandler(log, webhooks, verifier, cfg.Webhook.SignatureHeader),
	)
	return s, nil
}

// Start blocks until the listener fails or Shutdown is called
func (s *Server) Start() error {
	addr := s.config.Server.HTTP.Addr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes(qrisHandler *handlers.QrisHandler, webhookHandler *handlers.WebhookHandler) {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
			"profile": s.config.Gateway.Profile,
		})
	})

	v1 := s.echo.Group("/api/v1")
	if s.config.Auth.JWTSecret != "" {
		v1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret: s.config.Auth.JWTSecret,
			Logger: s.logger,
		}))
	} else {
		s.logger.Warn("JWT secret not set, /api/v1 is unauthenticated")
	}

	qris := v1.Group("/qris")
	qris.POST("", qrisHandler.CreateQR)
	qris.GET("/:reference/status", qrisHandler.GetStatus)
	qris.POST("/:reference/poll", qrisHandler.Poll)

	// Webhook route (outside API versioning)
	s.echo.POST("/webhook/qris", webhookHandler.HandleWebhook,
		middleware.BodyLimit(s.config.Webhook.MaxBodySize))
}
